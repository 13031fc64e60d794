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

// Package model defines the data structures shared by the video generation
// poller, the optimization pipeline, the stores and the API. This file holds
// the persistent workspace record and its generation parameters.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VideoStatus is the lifecycle state of a workspace's generated video.
type VideoStatus string

const (
	VideoPending    VideoStatus = "pending"
	VideoGenerating VideoStatus = "generating"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

// FormData holds the user-chosen generation parameters. Every field is
// optional free text; enum-like values are passed through untouched.
type FormData struct {
	CameraMovement  string `json:"camera_movement,omitempty"`
	ShotType        string `json:"shot_type,omitempty"`
	Lighting        string `json:"lighting,omitempty"`
	MotionPrompt    string `json:"motion_prompt,omitempty"`
	Duration        string `json:"duration,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	MotionIntensity string `json:"motion_intensity,omitempty"`
	QualityPreset   string `json:"quality_preset,omitempty"`
	Angle           string `json:"angle,omitempty"`
	FrameRate       string `json:"frame_rate,omitempty"`
}

// formFields maps each patchable field name to its storage in FormData.
var formFields = []struct {
	name string
	ref  func(*FormData) *string
}{
	{"camera_movement", func(f *FormData) *string { return &f.CameraMovement }},
	{"shot_type", func(f *FormData) *string { return &f.ShotType }},
	{"lighting", func(f *FormData) *string { return &f.Lighting }},
	{"motion_prompt", func(f *FormData) *string { return &f.MotionPrompt }},
	{"duration", func(f *FormData) *string { return &f.Duration }},
	{"aspect_ratio", func(f *FormData) *string { return &f.AspectRatio }},
	{"motion_intensity", func(f *FormData) *string { return &f.MotionIntensity }},
	{"quality_preset", func(f *FormData) *string { return &f.QualityPreset }},
	{"angle", func(f *FormData) *string { return &f.Angle }},
	{"frame_rate", func(f *FormData) *string { return &f.FrameRate }},
}

// FormFieldNames returns the field names accepted by Value and Apply.
func FormFieldNames() []string {
	names := make([]string, len(formFields))
	for i, f := range formFields {
		names[i] = f.name
	}
	return names
}

// Value returns the current value of the named field.
func (f FormData) Value(field string) (string, bool) {
	for _, ff := range formFields {
		if ff.name == field {
			return *ff.ref(&f), true
		}
	}
	return "", false
}

// Apply returns a copy of f with patch applied. Numbers and booleans are
// rendered as text. Field names that FormData does not know are returned in
// unknown and otherwise ignored.
func (f FormData) Apply(patch map[string]any) (FormData, []string) {
	out := f
	var unknown []string
	for field, value := range patch {
		applied := false
		for _, ff := range formFields {
			if ff.name == field {
				*ff.ref(&out) = FormatValue(value)
				applied = true
				break
			}
		}
		if !applied {
			unknown = append(unknown, field)
		}
	}
	return out, unknown
}

// FormatValue renders a loosely typed JSON value the way it is stored in
// FormData, so "5" and 5 compare equal.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// VideoRecord is the generated-video part of a workspace. Build it with
// GeneratingVideo, CompletedVideo or FailedVideo so that a completed record
// always carries a URL and a failed record always carries an error.
type VideoRecord struct {
	Status    VideoStatus `json:"status"`
	TaskID    string      `json:"task_id,omitempty"`
	URL       string      `json:"url,omitempty"`        // hosted, playable location
	RemoteURL string      `json:"remote_url,omitempty"` // location reported by the provider
	Error     string      `json:"error,omitempty"`
	Warning   string      `json:"warning,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// GeneratingVideo starts a new generation task record.
func GeneratingVideo(taskID string) VideoRecord {
	return VideoRecord{Status: VideoGenerating, TaskID: taskID, UpdatedAt: time.Now()}
}

// CompletedVideo finishes a task with a playable URL.
func CompletedVideo(taskID, url, remoteURL, warning string) (VideoRecord, error) {
	if strings.TrimSpace(url) == "" {
		return VideoRecord{}, errors.New("completed video requires a url")
	}
	return VideoRecord{
		Status:    VideoCompleted,
		TaskID:    taskID,
		URL:       url,
		RemoteURL: remoteURL,
		Warning:   warning,
		UpdatedAt: time.Now(),
	}, nil
}

// FailedVideo finishes a task with an error message. An empty message is
// replaced so the record never fails silently.
func FailedVideo(taskID, message string) VideoRecord {
	if strings.TrimSpace(message) == "" {
		message = "video generation failed"
	}
	return VideoRecord{Status: VideoFailed, TaskID: taskID, Error: message, UpdatedAt: time.Now()}
}

// OptimizationHistoryEntry is one completed optimization run. Entries are
// appended and never modified.
type OptimizationHistoryEntry struct {
	ID            string                `json:"id"`
	CreatedAt     time.Time             `json:"created_at"`
	Intent        *IntentReport         `json:"intent"`
	VideoAnalysis *VideoAnalysisReport  `json:"video_analysis"`
	Decision      *OptimizationDecision `json:"decision"`
}

// NewOptimizationHistoryEntry stamps a new entry with a random id.
func NewOptimizationHistoryEntry(intent *IntentReport, analysis *VideoAnalysisReport, decision *OptimizationDecision) OptimizationHistoryEntry {
	return OptimizationHistoryEntry{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		Intent:        intent,
		VideoAnalysis: analysis,
		Decision:      decision,
	}
}

// Workspace is the long-lived record shared by video generation and
// optimization. The poller only writes Video and the pipeline only appends to
// OptimizationHistory.
type Workspace struct {
	ID                  string                     `json:"id"`
	Name                string                     `json:"name,omitempty"`
	ImageURL            string                     `json:"image_url"`
	FormData            FormData                   `json:"form_data"`
	Video               VideoRecord                `json:"video"`
	OptimizationHistory []OptimizationHistoryEntry `json:"optimization_history"`
	CreatedAt           time.Time                  `json:"created_at"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}

// NewWorkspace creates a workspace with a random id and a pending video.
func NewWorkspace(name, imageURL string, formData FormData) *Workspace {
	now := time.Now()
	return &Workspace{
		ID:                  uuid.NewString(),
		Name:                name,
		ImageURL:            imageURL,
		FormData:            formData,
		Video:               VideoRecord{Status: VideoPending, UpdatedAt: now},
		OptimizationHistory: make([]OptimizationHistoryEntry, 0),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasCompletedVideo reports whether a playable video exists.
func (w *Workspace) HasCompletedVideo() bool {
	return w.Video.Status == VideoCompleted && w.Video.URL != ""
}

// Clone returns a deep copy so callers can hold a snapshot.
func (w *Workspace) Clone() *Workspace {
	out := *w
	out.OptimizationHistory = append([]OptimizationHistoryEntry(nil), w.OptimizationHistory...)
	return &out
}
