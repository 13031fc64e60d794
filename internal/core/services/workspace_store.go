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

// Package services contains the data access layer: workspace persistence
// (in memory or BigQuery) and re-hosting of generated videos in Cloud Storage.
//
// Workspace writes are field scoped. The video poller writes only the video
// record and the optimization pipeline only appends history, so the two can
// run concurrently over one workspace without overwriting each other.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
)

// WorkspaceStore persists workspaces.
type WorkspaceStore interface {
	// Create stores a new workspace.
	Create(ctx context.Context, ws *model.Workspace) error

	// Get returns a snapshot that the caller may modify freely.
	Get(ctx context.Context, id string) (*model.Workspace, error)

	// SetVideo replaces the video record. When expectTaskID is not empty the
	// write only happens if the stored record still belongs to that task;
	// otherwise model.ErrStaleTask is returned.
	SetVideo(ctx context.Context, id string, expectTaskID string, video model.VideoRecord) error

	// AppendHistory adds an optimization entry.
	AppendHistory(ctx context.Context, id string, entry model.OptimizationHistoryEntry) error

	// UpdateFormData replaces the generation parameters.
	UpdateFormData(ctx context.Context, id string, formData model.FormData) error
}

// MemoryWorkspaceStore keeps workspaces in process. It is used for local
// runs and tests.
type MemoryWorkspaceStore struct {
	mu         sync.RWMutex
	workspaces map[string]*model.Workspace
}

func NewMemoryWorkspaceStore() *MemoryWorkspaceStore {
	return &MemoryWorkspaceStore{workspaces: make(map[string]*model.Workspace)}
}

func (s *MemoryWorkspaceStore) Create(_ context.Context, ws *model.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[ws.ID] = ws.Clone()
	return nil
}

func (s *MemoryWorkspaceStore) Get(_ context.Context, id string) (*model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, model.ErrWorkspaceNotFound
	}
	return ws.Clone(), nil
}

func (s *MemoryWorkspaceStore) SetVideo(_ context.Context, id string, expectTaskID string, video model.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	if expectTaskID != "" && ws.Video.TaskID != expectTaskID {
		return model.ErrStaleTask
	}
	ws.Video = video
	ws.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryWorkspaceStore) AppendHistory(_ context.Context, id string, entry model.OptimizationHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	ws.OptimizationHistory = append(ws.OptimizationHistory, entry)
	ws.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryWorkspaceStore) UpdateFormData(_ context.Context, id string, formData model.FormData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return model.ErrWorkspaceNotFound
	}
	ws.FormData = formData
	ws.UpdatedAt = time.Now()
	return nil
}
