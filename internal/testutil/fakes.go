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

package testutil

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/agents"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/videogen"
)

// ErrNotScripted is returned by fakes that ran out of replies.
var ErrNotScripted = errors.New("no scripted reply")

// EventRecorder is a Publisher that keeps every event in order.
type EventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) Publish(_ context.Context, event model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far.
func (r *EventRecorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func (r *EventRecorder) Types() []model.EventType {
	events := r.Events()
	out := make([]model.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func (r *EventRecorder) OfType(eventType model.EventType) []model.Event {
	var out []model.Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// WaitFor blocks until an event of the given type was published and returns
// the first one, failing the test after timeout.
func (r *EventRecorder) WaitFor(t testing.TB, eventType model.EventType, timeout time.Duration) model.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if found := r.OfType(eventType); len(found) > 0 {
			return found[0]
		}
		if time.Now().After(deadline) {
			t.Fatalf("no %s event within %s, got %v", eventType, timeout, r.Types())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// StatusReply is one scripted answer of ScriptedVideoProvider.Status.
type StatusReply struct {
	Status videogen.TaskStatus
	Err    error
}

// ScriptedVideoProvider answers status checks from Replies in order and
// repeats the last reply once they run out.
type ScriptedVideoProvider struct {
	SubmitErr error
	Replies   []StatusReply

	mu          sync.Mutex
	submitted   []videogen.GenerationRequest
	statusCalls int
}

func (p *ScriptedVideoProvider) Submit(_ context.Context, req videogen.GenerationRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SubmitErr != nil {
		return "", p.SubmitErr
	}
	p.submitted = append(p.submitted, req)
	return fmt.Sprintf("task-%d", len(p.submitted)), nil
}

func (p *ScriptedVideoProvider) Status(_ context.Context, _ string) (videogen.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if len(p.Replies) == 0 {
		return videogen.TaskStatus{}, ErrNotScripted
	}
	i := min(p.statusCalls, len(p.Replies)) - 1
	return p.Replies[i].Status, p.Replies[i].Err
}

func (p *ScriptedVideoProvider) Submitted() []videogen.GenerationRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]videogen.GenerationRequest(nil), p.submitted...)
}

func (p *ScriptedVideoProvider) StatusCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

// FakeArtifactStore pretends to copy videos into a hosted bucket.
type FakeArtifactStore struct {
	Err error

	mu      sync.Mutex
	sources []string
}

func (s *FakeArtifactStore) Rehost(_ context.Context, workspaceID, taskID, sourceURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, sourceURL)
	if s.Err != nil {
		return "", s.Err
	}
	return HostedURL(workspaceID, taskID), nil
}

func (s *FakeArtifactStore) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sources...)
}

// HostedURL is the URL FakeArtifactStore returns for a task.
func HostedURL(workspaceID, taskID string) string {
	return fmt.Sprintf("https://storage.googleapis.com/hosted/%s/%s.mp4", workspaceID, path.Base(taskID))
}

// Reply is one scripted capability answer.
type Reply struct {
	Text string
	Err  error
}

// ScriptedCapabilities answers each capability from its own reply list,
// repeating the last reply once the list runs out.
type ScriptedCapabilities struct {
	Intent   []Reply
	Video    []Reply
	Decision []Reply

	mu             sync.Mutex
	intentInputs   []agents.IntentInput
	videoInputs    []agents.VideoAnalysisInput
	decisionInputs []agents.DecisionInput
}

// NewScriptedCapabilities returns capabilities that answer every call with
// a well-formed response.
func NewScriptedCapabilities() *ScriptedCapabilities {
	return &ScriptedCapabilities{
		Intent:   []Reply{{Text: IntentResponse()}},
		Video:    []Reply{{Text: VideoAnalysisResponse()}},
		Decision: []Reply{{Text: DecisionResponse()}},
	}
}

func (c *ScriptedCapabilities) AnalyzeIntent(_ context.Context, in agents.IntentInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intentInputs = append(c.intentInputs, in)
	return pick(c.Intent, len(c.intentInputs))
}

func (c *ScriptedCapabilities) AnalyzeVideo(_ context.Context, in agents.VideoAnalysisInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoInputs = append(c.videoInputs, in)
	return pick(c.Video, len(c.videoInputs))
}

func (c *ScriptedCapabilities) Decide(_ context.Context, in agents.DecisionInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisionInputs = append(c.decisionInputs, in)
	return pick(c.Decision, len(c.decisionInputs))
}

func (c *ScriptedCapabilities) IntentCalls() []agents.IntentInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agents.IntentInput(nil), c.intentInputs...)
}

func (c *ScriptedCapabilities) VideoCalls() []agents.VideoAnalysisInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agents.VideoAnalysisInput(nil), c.videoInputs...)
}

func (c *ScriptedCapabilities) DecisionCalls() []agents.DecisionInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agents.DecisionInput(nil), c.decisionInputs...)
}

func pick(replies []Reply, call int) (string, error) {
	if len(replies) == 0 {
		return "", ErrNotScripted
	}
	r := replies[min(call, len(replies))-1]
	return r.Text, r.Err
}
