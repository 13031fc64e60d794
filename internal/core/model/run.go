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

// Phase names a stage of the optimization pipeline.
type Phase string

const (
	PhaseIntent        Phase = "intent_analysis"
	PhaseConfirmation  Phase = "human_confirmation"
	PhaseVideoAnalysis Phase = "video_analysis"
	PhaseDecision      Phase = "optimization_decision"
	PhasePersist       Phase = "persist"
)

// OptimizationMode is chosen when a run starts.
type OptimizationMode string

const (
	// ModeFull runs all phases against a completed video.
	ModeFull OptimizationMode = "full"
	// ModeIntentOnly stops after the intent is confirmed because no video
	// exists yet.
	ModeIntentOnly OptimizationMode = "intent_only"
)

// StepStatus is the state of a sub-stage inside a phase.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
)

// Step is one entry of a run's ordered step log.
type Step struct {
	Phase       Phase      `json:"phase"`
	Key         string     `json:"key"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      StepStatus `json:"status"`
	Result      any        `json:"result,omitempty"`
	At          time.Time  `json:"at"`
}

// OptimizationRun is the in-memory state of one pipeline execution. It is
// owned by the goroutine executing the run and is never persisted as is.
type OptimizationRun struct {
	WorkspaceID   string
	Mode          OptimizationMode
	Workspace     *Workspace
	Intent        *IntentReport
	Corrections   *IntentCorrections
	VideoAnalysis *VideoAnalysisReport
	Decision      *OptimizationDecision
	Warnings      []Inconsistency
	Entry         *OptimizationHistoryEntry
	Steps         []Step
	Phase         Phase
	StartedAt     time.Time
}

// NewOptimizationRun prepares a run over a workspace snapshot. The mode is
// full only when the snapshot already has a playable video.
func NewOptimizationRun(ws *Workspace) *OptimizationRun {
	mode := ModeIntentOnly
	if ws.HasCompletedVideo() {
		mode = ModeFull
	}
	return &OptimizationRun{
		WorkspaceID: ws.ID,
		Mode:        mode,
		Workspace:   ws,
		StartedAt:   time.Now(),
	}
}

// Result summarizes the run for callers of the synchronous entry point.
func (r *OptimizationRun) Result() *OptimizationResult {
	return &OptimizationResult{
		Success:       true,
		WorkspaceID:   r.WorkspaceID,
		Mode:          r.Mode,
		Intent:        r.Intent,
		VideoAnalysis: r.VideoAnalysis,
		Decision:      r.Decision,
		Warnings:      r.Warnings,
		Entry:         r.Entry,
		Steps:         r.Steps,
	}
}

// OptimizationResult is returned by a successful run and broadcast as the
// optimization_result event.
type OptimizationResult struct {
	Success       bool                      `json:"success"`
	WorkspaceID   string                    `json:"workspace_id"`
	Mode          OptimizationMode          `json:"mode"`
	Intent        *IntentReport             `json:"intent,omitempty"`
	VideoAnalysis *VideoAnalysisReport      `json:"video_analysis,omitempty"`
	Decision      *OptimizationDecision     `json:"decision,omitempty"`
	Warnings      []Inconsistency           `json:"warnings,omitempty"`
	Entry         *OptimizationHistoryEntry `json:"entry,omitempty"`
	Steps         []Step                    `json:"steps,omitempty"`
}
