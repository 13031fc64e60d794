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

// Package videogen submits image-to-video generation tasks to a provider and
// polls them until they succeed, fail or run out of time.
//
// Logic Flow:
//  1. Submit builds a GenerationRequest from the workspace form and hands it
//     to the Provider. The returned task id is stored as a generating video.
//  2. Poll asks the Provider for the task status on every interval tick.
//     Transient status errors are logged and retried on the next tick.
//  3. A succeeded task is re-hosted into the artifact bucket when one is
//     configured and stored as completed. A failed task, a timeout or
//     rejected credentials store a failed video.
//  4. The terminal write only lands if the workspace still points at the
//     polled task, so a newer submission is never overwritten. Other write
//     errors are retried up to TerminalWriteAttempts times.
//  5. Every stored status change is broadcast as a video_status event. The
//     event carries the persistence error when the final write failed.
//
// Structs:
//   - TaskPoller: runs Submit and Poll, in the background through Start.
//   - VeoProvider: the Vertex AI implementation of Provider.
package videogen

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
)

// Provider statuses. Providers may report others; those count as running.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// GenerationRequest is everything a provider needs to start a task.
type GenerationRequest struct {
	WorkspaceID string
	ImageURL    string
	Prompt      string
	FormData    model.FormData
}

// TaskStatus is one status report for a task.
type TaskStatus struct {
	Status   string
	VideoURL string
	Message  string
}

// Provider is an asynchronous image-to-video service.
type Provider interface {
	Submit(ctx context.Context, req GenerationRequest) (taskID string, err error)
	Status(ctx context.Context, taskID string) (TaskStatus, error)
}

type outcome int

const (
	outcomeRunning outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// classify normalises a provider status. Anything unrecognised is treated as
// still running so an unexpected status never ends a task early.
func classify(status string) outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusSucceeded, "SUCCESS", "COMPLETED", "DONE":
		return outcomeSucceeded
	case StatusFailed, "FAILURE", "ERROR", "CANCELED", "CANCELLED":
		return outcomeFailed
	default:
		return outcomeRunning
	}
}

// BuildPrompt turns the form data into the text prompt sent with the image.
func BuildPrompt(fd model.FormData) string {
	var parts []string
	if fd.MotionPrompt != "" {
		parts = append(parts, fd.MotionPrompt)
	}
	describe := func(label, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", label, value))
		}
	}
	describe("Camera movement", fd.CameraMovement)
	describe("Shot type", fd.ShotType)
	describe("Camera angle", fd.Angle)
	describe("Lighting", fd.Lighting)
	describe("Motion intensity", fd.MotionIntensity)
	describe("Quality", fd.QualityPreset)
	if len(parts) == 0 {
		return "Animate the image with natural, subtle motion."
	}
	return strings.Join(parts, ". ") + "."
}
