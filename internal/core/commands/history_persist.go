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
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
)

// HistoryPersist appends the run's intent, analysis and decision to the
// workspace history as one entry.
type HistoryPersist struct {
	phaseCommand
	store services.WorkspaceStore
}

func NewHistoryPersist(name string, store services.WorkspaceStore, publisher broadcast.Publisher) *HistoryPersist {
	return &HistoryPersist{
		phaseCommand: newPhaseCommand(name, model.PhasePersist, "recorder", publisher),
		store:        store,
	}
}

func (c *HistoryPersist) Execute(chCtx cor.Context) {
	run := c.enter(chCtx)

	entry := model.NewOptimizationHistoryEntry(run.Intent, run.VideoAnalysis, run.Decision)
	if err := c.store.AppendHistory(chCtx.GetContext(), run.WorkspaceID, entry); err != nil {
		c.fail(chCtx, run, model.KindPersistence, err)
		return
	}
	run.Entry = &entry
	c.step(chCtx, run, "persist.history", "Saving optimization", "", model.StepCompleted, entry.ID)
	c.exit(chCtx, run)
}
