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

// Package gate suspends an optimization run until a human confirms or
// rejects the analysed intent, or until a deadline passes.
//
// Each waiting run owns one pending entry keyed by workspace id. An entry
// resolves exactly once, by whichever comes first of a Signal, its own timer,
// or cancellation of the waiting context, and is removed from the table at
// that moment. A timer can only resolve the entry that armed it, so a stale
// timer never touches a newer wait for the same workspace.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
)

// Resolution is the outcome of a Wait.
type Resolution struct {
	Confirmed   bool
	TimedOut    bool
	Canceled    bool
	Corrections *model.IntentCorrections
}

type pendingConfirmation struct {
	done  chan Resolution
	timer *time.Timer
}

// ConfirmationGate is safe for concurrent use.
type ConfirmationGate struct {
	mu      sync.Mutex
	pending map[string]*pendingConfirmation
}

func NewConfirmationGate() *ConfirmationGate {
	return &ConfirmationGate{pending: make(map[string]*pendingConfirmation)}
}

// Wait blocks until the workspace's confirmation is signalled, timeout
// elapses, or ctx is done. A second Wait on the same workspace replaces the
// first entry; the replaced waiter resolves as canceled.
func (g *ConfirmationGate) Wait(ctx context.Context, workspaceID string, timeout time.Duration) Resolution {
	p := &pendingConfirmation{done: make(chan Resolution, 1)}

	g.mu.Lock()
	previous := g.pending[workspaceID]
	p.timer = time.AfterFunc(timeout, func() {
		if g.resolve(workspaceID, p, Resolution{TimedOut: true}) {
			slog.Warn("confirmation timed out", "workspace_id", workspaceID, "timeout", timeout)
		}
	})
	g.pending[workspaceID] = p
	g.mu.Unlock()

	if previous != nil {
		previous.timer.Stop()
		previous.done <- Resolution{Canceled: true}
	}

	select {
	case r := <-p.done:
		return r
	case <-ctx.Done():
		g.resolve(workspaceID, p, Resolution{Canceled: true})
		return <-p.done
	}
}

// Signal delivers a human decision. It returns false when nothing is
// waiting for the workspace.
func (g *ConfirmationGate) Signal(workspaceID string, confirmed bool, corrections *model.IntentCorrections) bool {
	g.mu.Lock()
	p := g.pending[workspaceID]
	g.mu.Unlock()
	if p == nil {
		return false
	}
	return g.resolve(workspaceID, p, Resolution{Confirmed: confirmed, Corrections: corrections})
}

// Pending reports whether a run is waiting on the workspace.
func (g *ConfirmationGate) Pending(workspaceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[workspaceID]
	return ok
}

// resolve completes p if it is still the current entry for workspaceID.
func (g *ConfirmationGate) resolve(workspaceID string, p *pendingConfirmation, r Resolution) bool {
	g.mu.Lock()
	if g.pending[workspaceID] != p {
		g.mu.Unlock()
		return false
	}
	delete(g.pending, workspaceID)
	g.mu.Unlock()

	p.timer.Stop()
	p.done <- r
	return true
}
