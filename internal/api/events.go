// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Inbound socket message types.
const (
	MessageHumanConfirm = "human_confirm"
	MessagePing         = "ping"
)

// Outbound replies to inbound messages. Pipeline events use model.Event.
const (
	MessageConfirmAck = "confirm_ack"
	MessagePong       = "pong"
	MessageError      = "error"
)

// InboundMessage is what a client may send over the event socket.
type InboundMessage struct {
	Type        string                   `json:"type"`
	Confirmed   bool                     `json:"confirmed,omitempty"`
	Corrections *model.IntentCorrections `json:"corrections,omitempty"`
}

// Reply answers an inbound message.
type Reply struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Accepted    *bool  `json:"accepted,omitempty"`
	Message     string `json:"message,omitempty"`
}

// events upgrades to a WebSocket that carries the workspace's events out
// and confirmations in. All writes happen on this goroutine.
func (h *Handlers) events(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Store.Get(c, id); err != nil {
		h.fail(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c, "websocket upgrade failed", "workspace_id", id, "error", err)
		return
	}
	defer conn.Close()

	sub := h.Hub.Subscribe(id)
	defer sub.Close()

	ctx := context.WithoutCancel(c.Request.Context())
	replies := make(chan Reply, 8)
	done := make(chan struct{})
	go h.readLoop(ctx, conn, id, replies, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	slog.InfoContext(ctx, "event subscriber connected", "workspace_id", id)

	for {
		select {
		case <-done:
			slog.InfoContext(ctx, "event subscriber disconnected", "workspace_id", id)
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeJSON(conn, event); err != nil {
				slog.WarnContext(ctx, "failed to write event", "workspace_id", id, "error", err)
				return
			}
		case reply := <-replies:
			if err := writeJSON(conn, reply); err != nil {
				slog.WarnContext(ctx, "failed to write reply", "workspace_id", id, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) readLoop(ctx context.Context, conn *websocket.Conn, workspaceID string, replies chan<- Reply, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "event socket closed unexpectedly", "workspace_id", workspaceID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		reply := h.handleInbound(ctx, workspaceID, data)
		select {
		case replies <- reply:
		default:
			slog.WarnContext(ctx, "reply dropped, client is not reading", "workspace_id", workspaceID, "type", reply.Type)
		}
	}
}

func (h *Handlers) handleInbound(ctx context.Context, workspaceID string, data []byte) Reply {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{Type: MessageError, WorkspaceID: workspaceID, Message: "message is not valid JSON"}
	}
	switch msg.Type {
	case MessagePing:
		return Reply{Type: MessagePong, WorkspaceID: workspaceID}
	case MessageHumanConfirm:
		accepted := h.Optimizer.Confirm(workspaceID, msg.Confirmed, msg.Corrections)
		slog.InfoContext(ctx, "confirmation received over websocket",
			"workspace_id", workspaceID, "confirmed", msg.Confirmed, "accepted", accepted)
		reply := Reply{Type: MessageConfirmAck, WorkspaceID: workspaceID, Accepted: &accepted}
		if !accepted {
			reply.Message = "no confirmation pending for workspace"
		}
		return reply
	default:
		return Reply{Type: MessageError, WorkspaceID: workspaceID, Message: "unknown message type: " + msg.Type}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
