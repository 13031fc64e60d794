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
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/agents"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/tagged"
)

// IntentAnalysis reads the source image and form data into an IntentReport.
type IntentAnalysis struct {
	phaseCommand
	capabilities agents.Capabilities
}

func NewIntentAnalysis(name string, capabilities agents.Capabilities, publisher broadcast.Publisher) *IntentAnalysis {
	return &IntentAnalysis{
		phaseCommand: newPhaseCommand(name, model.PhaseIntent, "intent_analyzer", publisher),
		capabilities: capabilities,
	}
}

func (c *IntentAnalysis) Execute(chCtx cor.Context) {
	run := c.enter(chCtx)
	ws := run.Workspace

	c.step(chCtx, run, "intent.image", "Reading source image",
		"Describing the scene, mood and expected motion", model.StepRunning, nil)
	text, err := c.capabilities.AnalyzeIntent(chCtx.GetContext(), agents.IntentInput{
		WorkspaceID: ws.ID,
		ImageURL:    ws.ImageURL,
		FormData:    ws.FormData,
	})
	if err != nil {
		c.fail(chCtx, run, model.KindCapabilityFailure, err)
		return
	}

	intent := tagged.Parse[model.IntentReport](text, agents.TagIntentReport)
	if intent == nil {
		c.fail(chCtx, run, model.KindValidation, missingSection("intent_report", agents.TagIntentReport))
		return
	}
	if err := intent.Validate(); err != nil {
		c.fail(chCtx, run, model.KindValidation, err)
		return
	}

	run.Intent = intent
	c.step(chCtx, run, "intent.image", "Reading source image", "", model.StepCompleted, intent)
	c.publish(chCtx, run, model.EventIntentReport, intent)
	c.exit(chCtx, run)
}
