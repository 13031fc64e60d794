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
	"errors"
	"fmt"
)

var (
	// ErrWorkspaceNotFound is returned by stores for an unknown workspace id.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrStaleTask is returned when a video write targets a task that is no
	// longer the workspace's current task.
	ErrStaleTask = errors.New("video task superseded")

	// ErrNotConfirmed matches every run that ended because the human did not
	// confirm the intent, whether by rejecting it or by letting it time out.
	ErrNotConfirmed = errors.New("intent not confirmed")
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindCapabilityFailure ErrorKind = "capability_failure"
	KindTimeout           ErrorKind = "timeout"
	KindHumanRejected     ErrorKind = "human_rejected"
	KindPersistence       ErrorKind = "persistence"
)

// ValidationError names the report field that failed validation.
type ValidationError struct {
	Report string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %s %s", e.Report, e.Field, e.Reason)
}

// PipelineError is the error returned by a failed optimization run.
type PipelineError struct {
	Kind        ErrorKind
	Phase       Phase
	WorkspaceID string
	Err         error
}

// NewPipelineError wraps err with its classification.
func NewPipelineError(kind ErrorKind, phase Phase, workspaceID string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Phase: phase, WorkspaceID: workspaceID, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed (%s) for workspace %s: %v", e.Phase, e.Kind, e.WorkspaceID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotConfirmed) match both rejection and an
// unanswered confirmation.
func (e *PipelineError) Is(target error) bool {
	if target != ErrNotConfirmed {
		return false
	}
	return e.Kind == KindHumanRejected || (e.Kind == KindTimeout && e.Phase == PhaseConfirmation)
}
