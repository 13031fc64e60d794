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

// Package commands holds the Chain of Responsibility commands that make up
// the optimization pipeline, one per phase, and the Pub/Sub command that
// starts video generation.
//
// Phase commands share one *model.OptimizationRun stored in the chain
// context under CtxRun. Each command announces itself with agent_start,
// reports sub-stages as agent_step, and finishes with agent_complete. A
// failing command records a *model.PipelineError under its own name and the
// chain stops.
package commands

import (
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
)

// CtxRun is the chain context key of the active *model.OptimizationRun.
const CtxRun = "__RUN__"

// GetRun returns the run stored in the chain context, or nil.
func GetRun(chCtx cor.Context) *model.OptimizationRun {
	run, _ := chCtx.Get(CtxRun).(*model.OptimizationRun)
	return run
}

// phaseCommand is embedded by every pipeline phase.
type phaseCommand struct {
	cor.BaseCommand
	phase     model.Phase
	agent     string
	publisher broadcast.Publisher
}

func newPhaseCommand(name string, phase model.Phase, agent string, publisher broadcast.Publisher) phaseCommand {
	out := phaseCommand{
		BaseCommand: *cor.NewBaseCommand(name),
		phase:       phase,
		agent:       agent,
		publisher:   publisher,
	}
	out.InputParamName = CtxRun
	return out
}

func (p *phaseCommand) enter(chCtx cor.Context) *model.OptimizationRun {
	run := GetRun(chCtx)
	run.Phase = p.phase
	slog.InfoContext(chCtx.GetContext(), "phase started", "workspace_id", run.WorkspaceID, "phase", p.phase)
	p.publish(chCtx, run, model.EventAgentStart, model.AgentPhase{Phase: p.phase, Agent: p.agent})
	return run
}

func (p *phaseCommand) exit(chCtx cor.Context, run *model.OptimizationRun) {
	p.GetSuccessCounter().Add(chCtx.GetContext(), 1)
	slog.InfoContext(chCtx.GetContext(), "phase completed", "workspace_id", run.WorkspaceID, "phase", p.phase)
	p.publish(chCtx, run, model.EventAgentComplete, model.AgentPhase{Phase: p.phase, Agent: p.agent})
}

// step appends to the run's step log and announces it.
func (p *phaseCommand) step(chCtx cor.Context, run *model.OptimizationRun, key, title, description string, status model.StepStatus, result any) {
	s := model.Step{
		Phase:       p.phase,
		Key:         key,
		Title:       title,
		Description: description,
		Status:      status,
		Result:      result,
		At:          time.Now(),
	}
	run.Steps = append(run.Steps, s)
	p.publish(chCtx, run, model.EventAgentStep, s)
}

func (p *phaseCommand) fail(chCtx cor.Context, run *model.OptimizationRun, kind model.ErrorKind, err error) {
	p.GetErrorCounter().Add(chCtx.GetContext(), 1)
	slog.ErrorContext(chCtx.GetContext(), "phase failed",
		"workspace_id", run.WorkspaceID, "phase", p.phase, "kind", kind, "error", err)
	chCtx.AddError(p.GetName(), model.NewPipelineError(kind, p.phase, run.WorkspaceID, err))
}

func (p *phaseCommand) publish(chCtx cor.Context, run *model.OptimizationRun, eventType model.EventType, data any) {
	p.publisher.Publish(chCtx.GetContext(), model.NewEvent(eventType, run.WorkspaceID, data))
}

func missingSection(report, tag string) error {
	return &model.ValidationError{Report: report, Field: tag, Reason: "tagged section is missing or not valid JSON"}
}
