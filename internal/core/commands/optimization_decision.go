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
	"log/slog"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/agents"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/tagged"
)

// OptimizationDecision asks for a parameter patch. The response carries four
// tagged sections that are parsed independently; a missing section becomes
// its zero value and validation decides whether that is acceptable.
type OptimizationDecision struct {
	phaseCommand
	capabilities agents.Capabilities
}

func NewOptimizationDecision(name string, capabilities agents.Capabilities, publisher broadcast.Publisher) *OptimizationDecision {
	return &OptimizationDecision{
		phaseCommand: newPhaseCommand(name, model.PhaseDecision, "optimizer", publisher),
		capabilities: capabilities,
	}
}

func (c *OptimizationDecision) Execute(chCtx cor.Context) {
	run := c.enter(chCtx)
	ctx := chCtx.GetContext()
	formData := run.Workspace.FormData

	c.step(chCtx, run, "decision.patch", "Proposing parameter changes",
		"Explaining what went wrong and how to fix it", model.StepRunning, nil)
	text, err := c.capabilities.Decide(ctx, agents.DecisionInput{
		WorkspaceID:   run.WorkspaceID,
		FormData:      formData,
		Intent:        run.Intent,
		VideoAnalysis: run.VideoAnalysis,
	})
	if err != nil {
		c.fail(chCtx, run, model.KindCapabilityFailure, err)
		return
	}

	decision := &model.OptimizationDecision{
		WhyWrong:       tagged.ParseOr(text, agents.TagWhyWrong, []string{}),
		ParameterPatch: tagged.ParseOr(text, agents.TagParameterPatch, map[string]any{}),
		Changes:        tagged.ParseOr(text, agents.TagChanges, []model.ParameterChange{}),
		Confidence:     tagged.ParseOr(text, agents.TagConfidence, 0.0),
	}
	if err := decision.Validate(); err != nil {
		c.fail(chCtx, run, model.KindValidation, err)
		return
	}
	run.Decision = decision
	c.step(chCtx, run, "decision.patch", "Proposing parameter changes", "", model.StepCompleted, decision)

	warnings := decision.CheckConsistency(formData)
	for _, w := range warnings {
		slog.WarnContext(ctx, "decision does not match current form data",
			"workspace_id", run.WorkspaceID,
			"field", w.Field,
			"expected", w.Expected,
			"reported", w.Reported,
			"reason", w.Reason)
	}
	if len(warnings) > 0 {
		run.Warnings = warnings
		c.step(chCtx, run, "decision.consistency", "Checking proposed changes",
			"Some changes do not match the current parameters", model.StepCompleted, warnings)
	}
	c.exit(chCtx, run)
}
