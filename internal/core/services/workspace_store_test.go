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

package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
	"github.com/zeebo/assert"
)

func newStoreWithWorkspace(t *testing.T) (*services.MemoryWorkspaceStore, *model.Workspace) {
	t.Helper()
	store := services.NewMemoryWorkspaceStore()
	ws := model.NewWorkspace("harbor", "gs://images/harbor.png", model.FormData{MotionPrompt: "push in"})
	assert.NoError(t, store.Create(context.Background(), ws))
	return store, ws
}

func TestMemoryStoreGetReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	store, ws := newStoreWithWorkspace(t)

	got, err := store.Get(ctx, ws.ID)
	assert.NoError(t, err)
	got.FormData.MotionPrompt = "changed"

	again, err := store.Get(ctx, ws.ID)
	assert.NoError(t, err)
	assert.Equal(t, again.FormData.MotionPrompt, "push in")

	_, err = store.Get(ctx, "missing")
	assert.That(t, errors.Is(err, model.ErrWorkspaceNotFound))
}

func TestMemoryStoreSetVideoCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store, ws := newStoreWithWorkspace(t)

	assert.NoError(t, store.SetVideo(ctx, ws.ID, "", model.GeneratingVideo("task-a")))
	assert.NoError(t, store.SetVideo(ctx, ws.ID, "", model.GeneratingVideo("task-b")))

	done, err := model.CompletedVideo("task-a", "https://hosted/a.mp4", "", "")
	assert.NoError(t, err)
	err = store.SetVideo(ctx, ws.ID, "task-a", done)
	assert.That(t, errors.Is(err, model.ErrStaleTask))

	got, err := store.Get(ctx, ws.ID)
	assert.NoError(t, err)
	assert.Equal(t, got.Video.TaskID, "task-b")
	assert.Equal(t, got.Video.Status, model.VideoGenerating)
}

func TestMemoryStoreFieldScopedWrites(t *testing.T) {
	ctx := context.Background()
	store, ws := newStoreWithWorkspace(t)
	assert.NoError(t, store.SetVideo(ctx, ws.ID, "", model.GeneratingVideo("task-a")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		done, _ := model.CompletedVideo("task-a", "https://hosted/a.mp4", "", "")
		assert.NoError(t, store.SetVideo(ctx, ws.ID, "task-a", done))
	}()
	go func() {
		defer wg.Done()
		entry := model.NewOptimizationHistoryEntry(model.GetExampleIntentReport(), model.GetExampleVideoAnalysis(), model.GetExampleOptimizationDecision())
		assert.NoError(t, store.AppendHistory(ctx, ws.ID, entry))
	}()
	wg.Wait()

	got, err := store.Get(ctx, ws.ID)
	assert.NoError(t, err)
	assert.Equal(t, got.Video.Status, model.VideoCompleted)
	assert.Equal(t, len(got.OptimizationHistory), 1)
}

func TestMemoryStoreUpdateFormData(t *testing.T) {
	ctx := context.Background()
	store, ws := newStoreWithWorkspace(t)

	assert.NoError(t, store.UpdateFormData(ctx, ws.ID, model.FormData{MotionIntensity: "low"}))
	got, err := store.Get(ctx, ws.ID)
	assert.NoError(t, err)
	assert.DeepEqual(t, got.FormData, model.FormData{MotionIntensity: "low"})

	assert.Error(t, store.UpdateFormData(ctx, "missing", model.FormData{}))
	assert.Error(t, store.AppendHistory(ctx, "missing", model.OptimizationHistoryEntry{}))
}
