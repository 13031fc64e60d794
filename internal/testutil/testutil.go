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

// Package testutil holds the configuration loader, fakes and canned model
// responses shared by the test suites.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
)

// StateManager caches the test configuration so the TOML files are decoded
// once per test binary.
type StateManager struct {
	mu     sync.Mutex
	config *cloud.Config
}

var state = &StateManager{}

// ConfigDir returns the repository's configs directory regardless of which
// package the test runs from.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at the test configuration.
func SetupOS() error {
	if err := os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir()); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig loads the test configuration once and returns it.
func GetConfig(t testing.TB) *cloud.Config {
	t.Helper()
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.config == nil {
		if err := SetupOS(); err != nil {
			t.Fatalf("failed to setup environment for test: %v", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			t.Fatalf("failed to load test configuration: %v", err)
		}
		state.config = config
	}
	return state.config
}

// GetCloudClients creates real service clients for integration tests.
func GetCloudClients(t testing.TB, ctx context.Context, config *cloud.Config) *cloud.ServiceClients {
	t.Helper()
	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		t.Fatalf("failed to create cloud clients: %v", err)
	}
	return clients
}

// Tagged wraps body in <tag></tag> with some surrounding chatter, the way a
// model usually answers.
func Tagged(tag string, body string) string {
	return fmt.Sprintf("Here is my analysis.\n<%s>\n%s\n</%s>\n", tag, body, tag)
}

// IntentResponse is a well-formed intent analysis answer.
func IntentResponse() string {
	return Tagged("intent_report", mustJSON(model.GetExampleIntentReport()))
}

// VideoAnalysisResponse is a well-formed video analysis answer.
func VideoAnalysisResponse() string {
	return Tagged("video_analysis", mustJSON(model.GetExampleVideoAnalysis()))
}

// DecisionResponse is a well-formed decision answer with all four sections.
func DecisionResponse() string {
	d := model.GetExampleOptimizationDecision()
	return Tagged("why_wrong", mustJSON(d.WhyWrong)) +
		Tagged("parameter_patch", mustJSON(d.ParameterPatch)) +
		Tagged("changes", mustJSON(d.Changes)) +
		Tagged("confidence", mustJSON(d.Confidence))
}

// ExampleFormData matches the old values of the example decision, so a
// decision built from it raises no consistency warnings.
func ExampleFormData() model.FormData {
	return model.FormData{
		MotionPrompt:    "push in along the pier",
		CameraMovement:  "dolly in",
		ShotType:        "wide",
		Angle:           "eye level",
		Lighting:        "golden hour",
		MotionIntensity: "high",
		QualityPreset:   "high",
		AspectRatio:     "16:9",
		Duration:        "8",
		FrameRate:       "24",
	}
}

// CompletedWorkspace is a workspace with a playable video, which puts an
// optimization run in full mode.
func CompletedWorkspace() *model.Workspace {
	ws := model.NewWorkspace("harbor", "gs://images/harbor.png", ExampleFormData())
	video, _ := model.CompletedVideo("task-1", "https://storage.googleapis.com/videos/harbor.mp4", "gs://veo/harbor.mp4", "")
	ws.Video = video
	return ws
}

func mustJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(raw)
}
