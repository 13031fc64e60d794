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

package videogen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TerminalWriteAttempts bounds the writes of a terminal video record.
const TerminalWriteAttempts = 3

// TaskHandle identifies a submitted task. The timeout is measured from
// SubmittedAt.
type TaskHandle struct {
	WorkspaceID string    `json:"workspace_id"`
	TaskID      string    `json:"task_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TaskPoller drives a generation task from submission to a terminal video
// record. Every write is a compare-and-set on the task id, so a task that has
// been superseded by a newer submission can never overwrite the newer record.
type TaskPoller struct {
	store     services.WorkspaceStore
	provider  Provider
	artifacts services.ArtifactStore
	publisher broadcast.Publisher
	interval  time.Duration
	timeout   time.Duration

	writer    *cloud.RetryingCaller
	tracer    trace.Tracer
	completed metric.Int64Counter
	failed    metric.Int64Counter
	wg        sync.WaitGroup
}

// NewTaskPoller creates a poller. artifacts may be nil, in which case the
// provider's URL is used as is.
func NewTaskPoller(
	store services.WorkspaceStore,
	provider Provider,
	artifacts services.ArtifactStore,
	publisher broadcast.Publisher,
	interval time.Duration,
	timeout time.Duration,
) *TaskPoller {
	meter := otel.Meter(cor.MeterName)
	completed, err := meter.Int64Counter("video_generation.counter.completed")
	if err != nil {
		slog.Warn("failed to create counter", "error", err)
	}
	failed, err := meter.Int64Counter("video_generation.counter.failed")
	if err != nil {
		slog.Warn("failed to create counter", "error", err)
	}
	return &TaskPoller{
		store:     store,
		provider:  provider,
		artifacts: artifacts,
		publisher: publisher,
		interval:  interval,
		timeout:   timeout,
		writer:    cloud.NewRetryingCaller("video-record-write", TerminalWriteAttempts, interval),
		tracer:    otel.Tracer("video-generation-poller"),
		completed: completed,
		failed:    failed,
	}
}

// Start submits a task and polls it in the background. Polling outlives ctx.
func (p *TaskPoller) Start(ctx context.Context, workspaceID string) (TaskHandle, error) {
	handle, err := p.Submit(ctx, workspaceID)
	if err != nil {
		return handle, err
	}
	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Poll(bg, handle)
	}()
	return handle, nil
}

// Wait blocks until every background poll started by Start has finished.
func (p *TaskPoller) Wait() {
	p.wg.Wait()
}

// Submit starts a task for the workspace and records it as generating.
func (p *TaskPoller) Submit(ctx context.Context, workspaceID string) (TaskHandle, error) {
	ws, err := p.store.Get(ctx, workspaceID)
	if err != nil {
		return TaskHandle{}, err
	}
	req := GenerationRequest{
		WorkspaceID: ws.ID,
		ImageURL:    ws.ImageURL,
		Prompt:      BuildPrompt(ws.FormData),
		FormData:    ws.FormData,
	}
	taskID, err := p.provider.Submit(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "video generation submit failed", "workspace_id", workspaceID, "error", err)
		p.finish(ctx, TaskHandle{WorkspaceID: workspaceID}, "", model.FailedVideo("", err.Error()))
		return TaskHandle{}, err
	}

	handle := TaskHandle{WorkspaceID: workspaceID, TaskID: taskID, SubmittedAt: time.Now()}
	record := model.GeneratingVideo(taskID)
	if err := p.store.SetVideo(ctx, workspaceID, "", record); err != nil {
		return TaskHandle{}, fmt.Errorf("failed to record task %s: %w", taskID, err)
	}
	slog.InfoContext(ctx, "video generation submitted", "workspace_id", workspaceID, "task_id", taskID)
	p.publisher.Publish(ctx, model.NewEvent(model.EventVideoStatus, workspaceID, model.NewVideoStatusChange(record)))
	return handle, nil
}

// Poll checks the task every interval until it reaches a terminal state and
// returns the record it wrote.
func (p *TaskPoller) Poll(ctx context.Context, h TaskHandle) model.VideoRecord {
	ctx, span := p.tracer.Start(ctx, "poll-video-task")
	defer span.End()
	span.SetAttributes(attribute.String("workspace_id", h.WorkspaceID), attribute.String("task_id", h.TaskID))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.fail(ctx, span, h, fmt.Sprintf("polling stopped: %v", ctx.Err()))
		case <-ticker.C:
		}

		if elapsed := time.Since(h.SubmittedAt); elapsed >= p.timeout {
			return p.fail(ctx, span, h, fmt.Sprintf("video generation timed out after %s", p.timeout))
		}

		status, err := p.provider.Status(ctx, h.TaskID)
		if err != nil {
			if cloud.IsAuthError(err) {
				return p.fail(ctx, span, h, fmt.Sprintf("provider rejected credentials: %v", err))
			}
			slog.WarnContext(ctx, "video status check failed, will retry",
				"workspace_id", h.WorkspaceID, "task_id", h.TaskID, "error", err)
			continue
		}

		switch classify(status.Status) {
		case outcomeSucceeded:
			if status.VideoURL == "" {
				return p.fail(ctx, span, h, "provider reported success without a video url")
			}
			return p.complete(ctx, span, h, status.VideoURL)
		case outcomeFailed:
			msg := status.Message
			if msg == "" {
				msg = fmt.Sprintf("provider reported status %s", status.Status)
			}
			return p.fail(ctx, span, h, msg)
		default:
			slog.DebugContext(ctx, "video still generating",
				"workspace_id", h.WorkspaceID, "task_id", h.TaskID, "status", status.Status)
		}
	}
}

func (p *TaskPoller) complete(ctx context.Context, span trace.Span, h TaskHandle, remoteURL string) model.VideoRecord {
	hosted, warning := remoteURL, ""
	if p.artifacts != nil {
		url, err := p.artifacts.Rehost(ctx, h.WorkspaceID, h.TaskID, remoteURL)
		if err != nil {
			warning = fmt.Sprintf("video could not be re-hosted, serving provider url: %v", err)
			slog.WarnContext(ctx, "video re-host failed", "workspace_id", h.WorkspaceID, "task_id", h.TaskID, "error", err)
		} else {
			hosted = url
		}
	}
	record, err := model.CompletedVideo(h.TaskID, hosted, remoteURL, warning)
	if err != nil {
		return p.fail(ctx, span, h, err.Error())
	}
	if p.completed != nil {
		p.completed.Add(ctx, 1)
	}
	span.SetStatus(codes.Ok, "completed")
	slog.InfoContext(ctx, "video generation completed", "workspace_id", h.WorkspaceID, "task_id", h.TaskID, "url", hosted)
	p.finish(ctx, h, h.TaskID, record)
	return record
}

func (p *TaskPoller) fail(ctx context.Context, span trace.Span, h TaskHandle, message string) model.VideoRecord {
	record := model.FailedVideo(h.TaskID, message)
	if p.failed != nil {
		p.failed.Add(ctx, 1)
	}
	span.SetStatus(codes.Error, message)
	slog.ErrorContext(ctx, "video generation failed", "workspace_id", h.WorkspaceID, "task_id", h.TaskID, "error", message)
	p.finish(ctx, h, h.TaskID, record)
	return record
}

// finish persists a terminal record and announces it. A superseded task is
// dropped silently. When the record cannot be stored the event is still sent
// and carries the persistence error.
func (p *TaskPoller) finish(ctx context.Context, h TaskHandle, expectTaskID string, record model.VideoRecord) {
	stale := false
	_, err := cloud.Retry(ctx, p.writer, func(ctx context.Context) (struct{}, error) {
		err := p.store.SetVideo(ctx, h.WorkspaceID, expectTaskID, record)
		if errors.Is(err, model.ErrStaleTask) {
			stale = true
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if stale {
		slog.InfoContext(ctx, "task superseded, result discarded", "workspace_id", h.WorkspaceID, "task_id", h.TaskID)
		return
	}

	change := model.NewVideoStatusChange(record)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist video record", "workspace_id", h.WorkspaceID, "task_id", h.TaskID, "status", record.Status, "error", err)
		change.PersistError = err.Error()
	}
	p.publisher.Publish(ctx, model.NewEvent(model.EventVideoStatus, h.WorkspaceID, change))
}
