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

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/videogen"
)

// GenerationStarter starts a video generation task for a workspace.
type GenerationStarter interface {
	Start(ctx context.Context, workspaceID string) (videogen.TaskHandle, error)
}

// GenerationRequestMessage is the Pub/Sub payload asking for a new video.
type GenerationRequestMessage struct {
	WorkspaceID string `json:"workspace_id"`
}

// GenerationTrigger turns a queued generation request into a running task.
// Polling continues after the message is acked.
type GenerationTrigger struct {
	cor.BaseCommand
	starter GenerationStarter
}

func NewGenerationTrigger(name string, starter GenerationStarter) *GenerationTrigger {
	return &GenerationTrigger{BaseCommand: *cor.NewBaseCommand(name), starter: starter}
}

func (t *GenerationTrigger) Execute(chCtx cor.Context) {
	ctx := chCtx.GetContext()
	raw, _ := chCtx.Get(t.GetInputParam()).(string)

	var msg GenerationRequestMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		chCtx.AddError(t.GetName(), fmt.Errorf("invalid generation request: %w", err))
		return
	}
	if strings.TrimSpace(msg.WorkspaceID) == "" {
		t.GetErrorCounter().Add(ctx, 1)
		chCtx.AddError(t.GetName(), errors.New("invalid generation request: workspace_id is required"))
		return
	}

	handle, err := t.starter.Start(ctx, msg.WorkspaceID)
	if err != nil {
		t.GetErrorCounter().Add(ctx, 1)
		chCtx.AddError(t.GetName(), err)
		return
	}
	t.GetSuccessCounter().Add(ctx, 1)
	slog.InfoContext(ctx, "queued generation started", "workspace_id", handle.WorkspaceID, "task_id", handle.TaskID)
}
