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

package model_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkspace(t *testing.T) {
	ws := model.NewWorkspace("harbor", "gs://bucket/harbor.png", model.FormData{MotionPrompt: "push in"})

	assert.NotEmpty(t, ws.ID)
	assert.Equal(t, model.VideoPending, ws.Video.Status)
	assert.WithinDuration(t, time.Now(), ws.CreatedAt, time.Second)
	assert.Equal(t, 0, len(ws.OptimizationHistory))
	assert.False(t, ws.HasCompletedVideo())
}

func TestVideoRecordConstructors(t *testing.T) {
	_, err := model.CompletedVideo("task-1", "  ", "https://origin/video.mp4", "")
	assert.Error(t, err)

	done, err := model.CompletedVideo("task-1", "https://hosted/video.mp4", "https://origin/video.mp4", "")
	require.NoError(t, err)
	assert.Equal(t, model.VideoCompleted, done.Status)

	failed := model.FailedVideo("task-1", "")
	assert.Equal(t, model.VideoFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)

	ws := model.NewWorkspace("", "gs://bucket/a.png", model.FormData{})
	ws.Video = done
	assert.True(t, ws.HasCompletedVideo())
}

func TestFormDataApply(t *testing.T) {
	fd := model.FormData{MotionIntensity: "high", Duration: "8"}

	out, unknown := fd.Apply(map[string]any{
		"motion_intensity": "low",
		"duration":         float64(5),
		"color_grade":      "warm",
	})

	assert.Equal(t, "low", out.MotionIntensity)
	assert.Equal(t, "5", out.Duration)
	assert.Equal(t, []string{"color_grade"}, unknown)
	assert.Equal(t, "high", fd.MotionIntensity, "original must not change")
}

func TestIntentReportValidate(t *testing.T) {
	valid := model.GetExampleIntentReport()
	assert.NoError(t, valid.Validate())

	missing := *valid
	missing.DesiredMood = " "
	var vErr *model.ValidationError
	require.ErrorAs(t, missing.Validate(), &vErr)
	assert.Equal(t, "desired_mood", vErr.Field)

	outOfRange := *valid
	outOfRange.Confidence = 1.2
	require.ErrorAs(t, outOfRange.Validate(), &vErr)
	assert.Equal(t, "confidence", vErr.Field)
}

func TestIntentReportDecodedValidate(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"complete", `{"scene_description":"a cat","desired_mood":"calm","motion_expectation":"slow pan","confidence":0.7}`, ""},
		{"zero confidence", `{"scene_description":"a cat","desired_mood":"calm","motion_expectation":"slow pan","confidence":0}`, ""},
		{"confidence left out", `{"scene_description":"a cat","desired_mood":"calm","motion_expectation":"slow pan"}`, "confidence"},
		{"null confidence", `{"scene_description":"a cat","desired_mood":"calm","motion_expectation":"slow pan","confidence":null}`, "confidence"},
		{"mood left out", `{"scene_description":"a cat","motion_expectation":"slow pan","confidence":0.7}`, "desired_mood"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r model.IntentReport
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &r))
			err := r.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *model.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestVideoAnalysisReportValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *model.VideoAnalysisReport)
		field  string
	}{
		{"valid", func(r *model.VideoAnalysisReport) {}, ""},
		{"score above one", func(r *model.VideoAnalysisReport) { r.ContentMatchScore = 1.5 }, "content_match_score"},
		{"bad severity", func(r *model.VideoAnalysisReport) { r.Issues[1].Severity = "critical" }, "issues[1].severity"},
		{"negative fluency", func(r *model.VideoAnalysisReport) { r.TechnicalQuality.Fluency = -0.1 }, "technical_quality.fluency"},
		{"trivial assessment", func(r *model.VideoAnalysisReport) { r.OverallAssessment = "ok" }, "overall_assessment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := model.GetExampleVideoAnalysis()
			tt.mutate(r)
			err := r.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *model.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestVideoAnalysisReportDecodedValidate(t *testing.T) {
	const assessment = `"overall_assessment":"The pier drifts left and the water freezes halfway."`
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"complete", `{"content_match_score":0.4,"issues":[],"technical_quality":{"clarity":0.8,"fluency":0.6},` + assessment + `}`, ""},
		{"only issues and assessment", `{"issues":[],` + assessment + `}`, "content_match_score"},
		{"technical quality left out", `{"content_match_score":0.4,"issues":[],` + assessment + `}`, "technical_quality"},
		{"clarity left out", `{"content_match_score":0.4,"issues":[],"technical_quality":{"fluency":0.6},` + assessment + `}`, "technical_quality.clarity"},
		{"fluency left out", `{"content_match_score":0.4,"issues":[],"technical_quality":{"clarity":0.8},` + assessment + `}`, "technical_quality.fluency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r model.VideoAnalysisReport
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &r))
			err := r.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *model.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestOptimizationDecisionValidate(t *testing.T) {
	d := model.GetExampleOptimizationDecision()
	assert.NoError(t, d.Validate())

	noReasons := *d
	noReasons.WhyWrong = []string{""}
	var vErr *model.ValidationError
	require.ErrorAs(t, noReasons.Validate(), &vErr)
	assert.Equal(t, "why_wrong", vErr.Field)

	noChanges := *d
	noChanges.Changes = nil
	require.ErrorAs(t, noChanges.Validate(), &vErr)
	assert.Equal(t, "changes", vErr.Field)
}

func TestCheckConsistency(t *testing.T) {
	d := model.GetExampleOptimizationDecision()
	current := model.FormData{MotionIntensity: "high", MotionPrompt: "push in along the pier"}
	assert.Empty(t, d.CheckConsistency(current))

	stale := model.FormData{MotionIntensity: "medium", MotionPrompt: "push in along the pier"}
	found := d.CheckConsistency(stale)
	require.Len(t, found, 1)
	assert.Equal(t, "motion_intensity", found[0].Field)
	assert.Equal(t, "medium", found[0].Expected)
	assert.Equal(t, "high", found[0].Reported)
}

func TestIntentCorrections(t *testing.T) {
	mood := "tense"
	corrected := (&model.IntentCorrections{DesiredMood: &mood}).ApplyTo(model.GetExampleIntentReport())
	assert.Equal(t, "tense", corrected.DesiredMood)
	assert.Equal(t, model.GetExampleIntentReport().SceneDescription, corrected.SceneDescription)

	var none *model.IntentCorrections
	assert.Equal(t, model.GetExampleIntentReport(), none.ApplyTo(model.GetExampleIntentReport()))
}

func TestPipelineErrorNotConfirmed(t *testing.T) {
	rejected := model.NewPipelineError(model.KindHumanRejected, model.PhaseConfirmation, "ws", errors.New("rejected"))
	timedOut := model.NewPipelineError(model.KindTimeout, model.PhaseConfirmation, "ws", errors.New("no answer"))
	capability := model.NewPipelineError(model.KindCapabilityFailure, model.PhaseVideoAnalysis, "ws", errors.New("boom"))

	assert.ErrorIs(t, fmt.Errorf("run: %w", rejected), model.ErrNotConfirmed)
	assert.ErrorIs(t, timedOut, model.ErrNotConfirmed)
	assert.NotErrorIs(t, capability, model.ErrNotConfirmed)
	assert.NotEqual(t, rejected.Kind, timedOut.Kind)
}

func TestNewOptimizationRunMode(t *testing.T) {
	ws := model.NewWorkspace("", "gs://bucket/a.png", model.FormData{})
	assert.Equal(t, model.ModeIntentOnly, model.NewOptimizationRun(ws).Mode)

	ws.Video, _ = model.CompletedVideo("t", "https://hosted/v.mp4", "", "")
	assert.Equal(t, model.ModeFull, model.NewOptimizationRun(ws).Mode)
}
