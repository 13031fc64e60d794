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

// Package broadcast fans progress events out to the subscribers of a
// workspace. Delivery is best effort: Publish never blocks, and a subscriber
// whose buffer is full misses the event. Publishing to a workspace nobody
// watches is a no-op.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Publisher is what pipeline components depend on to report progress.
type Publisher interface {
	Publish(ctx context.Context, event model.Event)
}

// Subscription receives the events of one workspace until Close.
type Subscription struct {
	id          uint64
	workspaceID string
	events      chan model.Event
	hub         *Hub
	once        sync.Once
}

// Events is closed when the subscription is closed.
func (s *Subscription) Events() <-chan model.Event {
	return s.events
}

func (s *Subscription) WorkspaceID() string {
	return s.workspaceID
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Hub is an in-process Publisher keyed by workspace id.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]*Subscription
	nextID      atomic.Uint64
	bufferSize  int
	dropped     metric.Int64Counter
}

// NewHub creates a hub whose subscriptions buffer bufferSize events.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	dropped, err := otel.Meter(cor.MeterName).Int64Counter("broadcast.counter.dropped")
	if err != nil {
		slog.Warn("failed to create dropped event counter", "error", err)
	}
	return &Hub{
		subscribers: make(map[string]map[uint64]*Subscription),
		bufferSize:  bufferSize,
		dropped:     dropped,
	}
}

// Subscribe registers a new subscriber for workspaceID.
func (h *Hub) Subscribe(workspaceID string) *Subscription {
	s := &Subscription{
		id:          h.nextID.Add(1),
		workspaceID: workspaceID,
		events:      make(chan model.Event, h.bufferSize),
		hub:         h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.subscribers[workspaceID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		h.subscribers[workspaceID] = subs
	}
	subs[s.id] = s
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[s.workspaceID]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(h.subscribers, s.workspaceID)
		}
	}
	close(s.events)
}

// Publish delivers event to every current subscriber of its workspace.
func (h *Hub) Publish(ctx context.Context, event model.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subscribers[event.WorkspaceID] {
		select {
		case s.events <- event:
		default:
			slog.WarnContext(ctx, "subscriber buffer full, dropping event",
				"workspace_id", event.WorkspaceID,
				"event_type", string(event.Type))
			if h.dropped != nil {
				h.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", string(event.Type))))
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions for workspaceID.
func (h *Hub) SubscriberCount(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[workspaceID])
}
