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

package model

import (
	"time"
)

// EventType identifies an outbound progress event.
type EventType string

const (
	EventAgentStart         EventType = "agent_start"
	EventAgentComplete      EventType = "agent_complete"
	EventAgentStep          EventType = "agent_step"
	EventIntentReport       EventType = "intent_report"
	EventHumanLoopPending   EventType = "human_loop_pending"
	EventVideoAnalysis      EventType = "video_analysis"
	EventOptimizationResult EventType = "optimization_result"
	EventOptimizationError  EventType = "optimization_error"
	EventVideoStatus        EventType = "video_status"
)

// Event is the envelope pushed to workspace subscribers.
type Event struct {
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	Timestamp   time.Time `json:"timestamp"`
	Data        any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, workspaceID string, data any) Event {
	return Event{Type: eventType, WorkspaceID: workspaceID, Timestamp: time.Now(), Data: data}
}

// AgentPhase is the payload of agent_start and agent_complete.
type AgentPhase struct {
	Phase Phase  `json:"phase"`
	Agent string `json:"agent"`
}

// HumanLoopPending is sent while the pipeline waits for a confirmation.
type HumanLoopPending struct {
	Intent         *IntentReport    `json:"intent"`
	Mode           OptimizationMode `json:"mode"`
	TimeoutSeconds int              `json:"timeout_seconds"`
}

// OptimizationFailure is the payload of optimization_error.
type OptimizationFailure struct {
	Message string    `json:"message"`
	Phase   Phase     `json:"phase,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

// VideoStatusChange is the payload of video_status.
type VideoStatusChange struct {
	Status  VideoStatus `json:"status"`
	TaskID  string      `json:"task_id,omitempty"`
	URL     string      `json:"url,omitempty"`
	Error   string      `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`

	// PersistError is set when the record could not be stored.
	PersistError string `json:"persist_error,omitempty"`
}

// NewVideoStatusChange copies the broadcastable fields of a record.
func NewVideoStatusChange(v VideoRecord) VideoStatusChange {
	return VideoStatusChange{Status: v.Status, TaskID: v.TaskID, URL: v.URL, Error: v.Error, Warning: v.Warning}
}
