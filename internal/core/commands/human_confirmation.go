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
	"fmt"
	"strings"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/gate"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
)

// HumanConfirmation blocks the run until the analysed intent is confirmed.
// Runs without a completed video end here successfully.
type HumanConfirmation struct {
	phaseCommand
	store   services.WorkspaceStore
	gate    *gate.ConfirmationGate
	timeout time.Duration
}

func NewHumanConfirmation(name string, store services.WorkspaceStore, confirmationGate *gate.ConfirmationGate, timeout time.Duration, publisher broadcast.Publisher) *HumanConfirmation {
	return &HumanConfirmation{
		phaseCommand: newPhaseCommand(name, model.PhaseConfirmation, "human_reviewer", publisher),
		store:        store,
		gate:         confirmationGate,
		timeout:      timeout,
	}
}

func (c *HumanConfirmation) Execute(chCtx cor.Context) {
	run := c.enter(chCtx)

	c.publish(chCtx, run, model.EventHumanLoopPending, model.HumanLoopPending{
		Intent:         run.Intent,
		Mode:           run.Mode,
		TimeoutSeconds: int(c.timeout / time.Second),
	})
	c.step(chCtx, run, "confirmation.wait", "Waiting for confirmation",
		"Review the intent and confirm or reject it", model.StepRunning, nil)

	res := c.gate.Wait(chCtx.GetContext(), run.WorkspaceID, c.timeout)
	switch {
	case res.TimedOut:
		c.fail(chCtx, run, model.KindTimeout, fmt.Errorf("%w: no answer within %s", model.ErrNotConfirmed, c.timeout))
		return
	case res.Canceled:
		c.fail(chCtx, run, model.KindTimeout, fmt.Errorf("%w: wait was abandoned", model.ErrNotConfirmed))
		return
	case !res.Confirmed:
		c.fail(chCtx, run, model.KindHumanRejected, fmt.Errorf("%w: intent rejected", model.ErrNotConfirmed))
		return
	}

	if res.Corrections != nil {
		corrected := res.Corrections.ApplyTo(run.Intent)
		if err := corrected.Validate(); err != nil {
			c.fail(chCtx, run, model.KindValidation, err)
			return
		}
		run.Intent = corrected
		run.Corrections = res.Corrections
	}
	c.step(chCtx, run, "confirmation.wait", "Waiting for confirmation", "Intent confirmed", model.StepCompleted, run.Intent)

	if run.Mode == model.ModeIntentOnly {
		// The form may have been edited while the run waited.
		ws, err := c.store.Get(chCtx.GetContext(), run.WorkspaceID)
		if err != nil {
			c.fail(chCtx, run, model.KindPersistence, err)
			return
		}
		run.Workspace = ws
		if strings.TrimSpace(run.Workspace.FormData.MotionPrompt) == "" {
			c.fail(chCtx, run, model.KindValidation, &model.ValidationError{
				Report: "form_data",
				Field:  "motion_prompt",
				Reason: "is required when the workspace has no completed video",
			})
			return
		}
		c.exit(chCtx, run)
		chCtx.Halt()
		return
	}
	c.exit(chCtx, run)
}
