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

package commands

import (
	"context"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/agents"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/tagged"
)

// VideoAnalysis compares the generated video with the confirmed intent. The
// workspace is re-read first because the video or the form data may have
// changed while the run waited for confirmation.
type VideoAnalysis struct {
	phaseCommand
	store        services.WorkspaceStore
	capabilities agents.Capabilities
	caller       *cloud.RetryingCaller
}

func NewVideoAnalysis(name string, store services.WorkspaceStore, capabilities agents.Capabilities, caller *cloud.RetryingCaller, publisher broadcast.Publisher) *VideoAnalysis {
	return &VideoAnalysis{
		phaseCommand: newPhaseCommand(name, model.PhaseVideoAnalysis, "video_analyzer", publisher),
		store:        store,
		capabilities: capabilities,
		caller:       caller,
	}
}

func (c *VideoAnalysis) Execute(chCtx cor.Context) {
	run := c.enter(chCtx)
	ctx := chCtx.GetContext()

	ws, err := c.store.Get(ctx, run.WorkspaceID)
	if err != nil {
		c.fail(chCtx, run, model.KindPersistence, err)
		return
	}
	run.Workspace = ws
	if !ws.HasCompletedVideo() {
		c.fail(chCtx, run, model.KindValidation, &model.ValidationError{
			Report: "workspace",
			Field:  "video.url",
			Reason: "no completed video to analyse",
		})
		return
	}

	c.step(chCtx, run, "video.review", "Reviewing generated video",
		"Scoring content match and technical quality", model.StepRunning, nil)
	input := agents.VideoAnalysisInput{
		WorkspaceID: ws.ID,
		VideoURL:    ws.Video.URL,
		Intent:      run.Intent,
		FormData:    ws.FormData,
	}
	text, err := cloud.Retry(ctx, c.caller, func(ctx context.Context) (string, error) {
		return c.capabilities.AnalyzeVideo(ctx, input)
	})
	if err != nil {
		c.fail(chCtx, run, model.KindCapabilityFailure, err)
		return
	}

	report := tagged.Parse[model.VideoAnalysisReport](text, agents.TagVideoAnalysis)
	if report == nil {
		c.fail(chCtx, run, model.KindValidation, missingSection("video_analysis", agents.TagVideoAnalysis))
		return
	}
	if err := report.Validate(); err != nil {
		c.fail(chCtx, run, model.KindValidation, err)
		return
	}

	run.VideoAnalysis = report
	c.step(chCtx, run, "video.review", "Reviewing generated video", "", model.StepCompleted, report)
	c.publish(chCtx, run, model.EventVideoAnalysis, report)
	c.exit(chCtx, run)
}
