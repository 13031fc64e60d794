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

package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/gate"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitAsync starts a Wait and returns a channel with its resolution once
// the entry is registered.
func waitAsync(t *testing.T, g *gate.ConfirmationGate, ctx context.Context, id string, timeout time.Duration) <-chan gate.Resolution {
	t.Helper()
	out := make(chan gate.Resolution, 1)
	go func() { out <- g.Wait(ctx, id, timeout) }()
	require.Eventually(t, func() bool { return g.Pending(id) }, time.Second, time.Millisecond)
	return out
}

func TestSignalConfirms(t *testing.T) {
	g := gate.NewConfirmationGate()
	result := waitAsync(t, g, context.Background(), "ws-1", time.Minute)

	mood := "tense"
	assert.True(t, g.Signal("ws-1", true, &model.IntentCorrections{DesiredMood: &mood}))

	r := <-result
	assert.True(t, r.Confirmed)
	assert.False(t, r.TimedOut)
	require.NotNil(t, r.Corrections)
	assert.Equal(t, "tense", *r.Corrections.DesiredMood)
	assert.False(t, g.Pending("ws-1"))
}

func TestSignalRejects(t *testing.T) {
	g := gate.NewConfirmationGate()
	result := waitAsync(t, g, context.Background(), "ws-1", time.Minute)

	assert.True(t, g.Signal("ws-1", false, nil))
	r := <-result
	assert.False(t, r.Confirmed)
	assert.False(t, r.TimedOut)
}

func TestSignalWithoutWaiter(t *testing.T) {
	g := gate.NewConfirmationGate()
	assert.False(t, g.Signal("missing", true, nil))
}

func TestTimeoutResolvesAndRemovesEntry(t *testing.T) {
	g := gate.NewConfirmationGate()
	r := g.Wait(context.Background(), "ws-1", 10*time.Millisecond)

	assert.True(t, r.TimedOut)
	assert.False(t, r.Confirmed)
	assert.False(t, g.Pending("ws-1"))
	assert.False(t, g.Signal("ws-1", true, nil), "late signal must find nothing")
}

func TestSignalAfterResolutionIsIgnored(t *testing.T) {
	g := gate.NewConfirmationGate()
	result := waitAsync(t, g, context.Background(), "ws-1", time.Minute)

	assert.True(t, g.Signal("ws-1", true, nil))
	assert.False(t, g.Signal("ws-1", false, nil))
	assert.True(t, (<-result).Confirmed)
}

func TestStaleTimerDoesNotResolveNewWait(t *testing.T) {
	g := gate.NewConfirmationGate()
	first := waitAsync(t, g, context.Background(), "ws-1", 30*time.Millisecond)
	assert.True(t, g.Signal("ws-1", true, nil))
	<-first

	second := waitAsync(t, g, context.Background(), "ws-1", time.Minute)
	time.Sleep(60 * time.Millisecond)
	assert.True(t, g.Pending("ws-1"), "first wait's timer must not resolve the second wait")

	assert.True(t, g.Signal("ws-1", false, nil))
	assert.False(t, (<-second).Confirmed)
}

func TestContextCancelResolvesWait(t *testing.T) {
	g := gate.NewConfirmationGate()
	ctx, cancel := context.WithCancel(context.Background())
	result := waitAsync(t, g, ctx, "ws-1", time.Minute)

	cancel()
	r := <-result
	assert.True(t, r.Canceled)
	assert.False(t, g.Pending("ws-1"))
}

func TestWaitsAreIndependentPerWorkspace(t *testing.T) {
	g := gate.NewConfirmationGate()
	a := waitAsync(t, g, context.Background(), "ws-a", time.Minute)
	b := waitAsync(t, g, context.Background(), "ws-b", time.Minute)

	assert.True(t, g.Signal("ws-b", false, nil))
	assert.False(t, (<-b).Confirmed)
	assert.True(t, g.Pending("ws-a"))

	assert.True(t, g.Signal("ws-a", true, nil))
	assert.True(t, (<-a).Confirmed)
}
