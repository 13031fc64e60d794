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

// Package workflow assembles the optimization pipeline out of the phase
// commands and runs it once per request.
//
// Logic Flow:
//  1. Run or Start claims the workspace. A second run for the same workspace
//     is refused with ErrRunInProgress until the first one releases it.
//  2. The workspace is loaded and a run is created. Its mode is full when a
//     completed video exists and intent-only otherwise.
//  3. The chain executes intent analysis, human confirmation, video analysis,
//     the optimization decision and history persistence in that order.
//  4. Human confirmation parks the run on the ConfirmationGate until Confirm
//     is called or the confirmation timeout passes. Intent-only runs halt
//     there.
//  5. The first phase error becomes a PipelineError. It is counted, logged and
//     broadcast as an optimization_error event.
//  6. A successful run is broadcast as an optimization_result event and
//     returned to Run callers.
//
// Start runs the same flow on a background goroutine detached from the
// request context. Wait blocks until those goroutines finish.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/agents"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/gate"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
)

// ErrRunInProgress is returned when a workspace already has a run in flight.
var ErrRunInProgress = errors.New("an optimization is already running for this workspace")

// Options tunes the pipeline. Zero values fall back to the defaults.
type Options struct {
	ConfirmationTimeout   time.Duration
	VideoAnalysisAttempts int
	VideoAnalysisBackoff  time.Duration
}

// OptionsFromConfig reads the optimization section of the configuration.
func OptionsFromConfig(config cloud.Optimization) Options {
	return Options{
		ConfirmationTimeout:   config.ConfirmationTimeout(),
		VideoAnalysisAttempts: config.VideoAnalysisMaxAttempts,
		VideoAnalysisBackoff:  config.VideoAnalysisBackoff(),
	}
}

const DefaultConfirmationTimeout = 5 * time.Minute

// OptimizationWorkflow runs intent analysis, human confirmation, video
// analysis, decision and persistence in that order. Runs of the same
// workspace are serialized; runs of different workspaces are independent.
type OptimizationWorkflow struct {
	cor.BaseCommand
	store     services.WorkspaceStore
	gate      *gate.ConfirmationGate
	publisher broadcast.Publisher
	chain     cor.Chain

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func NewOptimizationWorkflow(
	store services.WorkspaceStore,
	capabilities agents.Capabilities,
	confirmationGate *gate.ConfirmationGate,
	publisher broadcast.Publisher,
	opts Options) *OptimizationWorkflow {

	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if opts.VideoAnalysisAttempts <= 0 {
		opts.VideoAnalysisAttempts = cloud.DefaultMaxAttempts
	}
	if opts.VideoAnalysisBackoff <= 0 {
		opts.VideoAnalysisBackoff = cloud.DefaultBaseDelay
	}

	w := &OptimizationWorkflow{
		BaseCommand: *cor.NewBaseCommand("optimization-pipeline"),
		store:       store,
		gate:        confirmationGate,
		publisher:   publisher,
		active:      make(map[string]struct{}),
	}
	w.initializeChain(capabilities, opts)
	return w
}

func (w *OptimizationWorkflow) initializeChain(capabilities agents.Capabilities, opts Options) {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewIntentAnalysis("intent-analysis", capabilities, w.publisher))
	out.AddCommand(commands.NewHumanConfirmation("human-confirmation", w.store, w.gate, opts.ConfirmationTimeout, w.publisher))
	out.AddCommand(commands.NewVideoAnalysis("video-analysis", w.store, capabilities,
		cloud.NewRetryingCaller("video-analysis", opts.VideoAnalysisAttempts, opts.VideoAnalysisBackoff), w.publisher))
	out.AddCommand(commands.NewOptimizationDecision("optimization-decision", capabilities, w.publisher))
	out.AddCommand(commands.NewHistoryPersist("history-persist", w.store, w.publisher))
	w.chain = out
}

// Execute runs the chain on a context that already holds a run under
// commands.CtxRun.
func (w *OptimizationWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// Run executes one optimization synchronously. Failures are broadcast as a
// single optimization_error event and returned as *model.PipelineError.
func (w *OptimizationWorkflow) Run(ctx context.Context, workspaceID string) (*model.OptimizationResult, error) {
	if err := w.acquire(workspaceID); err != nil {
		return nil, err
	}
	defer w.release(workspaceID)
	return w.run(ctx, workspaceID)
}

// Start accepts a run and executes it in the background. Only a missing
// workspace or a run already in flight are reported here; everything else
// surfaces through the broadcast events.
func (w *OptimizationWorkflow) Start(ctx context.Context, workspaceID string) error {
	if _, err := w.store.Get(ctx, workspaceID); err != nil {
		return err
	}
	if err := w.acquire(workspaceID); err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.release(workspaceID)
		if _, err := w.run(bg, workspaceID); err != nil {
			slog.WarnContext(bg, "background optimization ended with error", "workspace_id", workspaceID, "error", err)
		}
	}()
	return nil
}

// Confirm routes a human decision to the waiting run.
func (w *OptimizationWorkflow) Confirm(workspaceID string, confirmed bool, corrections *model.IntentCorrections) bool {
	return w.gate.Signal(workspaceID, confirmed, corrections)
}

// Running reports whether the workspace has a run in flight.
func (w *OptimizationWorkflow) Running(workspaceID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[workspaceID]
	return ok
}

// Wait blocks until every run started with Start has finished.
func (w *OptimizationWorkflow) Wait() {
	w.wg.Wait()
}

func (w *OptimizationWorkflow) run(ctx context.Context, workspaceID string) (*model.OptimizationResult, error) {
	ctx, span := w.GetTracer().Start(ctx, "optimization-run")
	defer span.End()

	ws, err := w.store.Get(ctx, workspaceID)
	if err != nil {
		return nil, w.failed(ctx, model.NewPipelineError(model.KindPersistence, model.PhaseIntent, workspaceID, err))
	}
	run := model.NewOptimizationRun(ws)
	slog.InfoContext(ctx, "optimization started", "workspace_id", workspaceID, "mode", run.Mode)

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(commands.CtxRun, run)
	w.Execute(chCtx)

	if chCtx.HasErrors() {
		err := chCtx.FirstError()
		var pipelineErr *model.PipelineError
		if !errors.As(err, &pipelineErr) {
			pipelineErr = model.NewPipelineError(model.KindCapabilityFailure, run.Phase, workspaceID, err)
		}
		return nil, w.failed(ctx, pipelineErr)
	}

	result := run.Result()
	w.GetSuccessCounter().Add(ctx, 1)
	slog.InfoContext(ctx, "optimization completed",
		"workspace_id", workspaceID,
		"mode", run.Mode,
		"duration", time.Since(run.StartedAt).String())
	w.publisher.Publish(ctx, model.NewEvent(model.EventOptimizationResult, workspaceID, result))
	return result, nil
}

func (w *OptimizationWorkflow) failed(ctx context.Context, err *model.PipelineError) error {
	w.GetErrorCounter().Add(ctx, 1)
	slog.ErrorContext(ctx, "optimization failed",
		"workspace_id", err.WorkspaceID, "phase", err.Phase, "kind", err.Kind, "error", err.Err)
	w.publisher.Publish(ctx, model.NewEvent(model.EventOptimizationError, err.WorkspaceID, model.OptimizationFailure{
		Message: err.Err.Error(),
		Phase:   err.Phase,
		Kind:    err.Kind,
	}))
	return err
}

func (w *OptimizationWorkflow) acquire(workspaceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.active[workspaceID]; busy {
		return fmt.Errorf("%w: %s", ErrRunInProgress, workspaceID)
	}
	w.active[workspaceID] = struct{}{}
	return nil
}

func (w *OptimizationWorkflow) release(workspaceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, workspaceID)
}
