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

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"google.golang.org/api/iterator"
)

// BigQueryWorkspaceStore keeps one row per workspace. Form data and history
// entries are stored as JSON strings.
type BigQueryWorkspaceStore struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	WorkspaceTable string
}

// workspaceRow is the flattened table layout.
type workspaceRow struct {
	ID             string                 `bigquery:"id"`
	Name           string                 `bigquery:"name"`
	ImageURL       string                 `bigquery:"image_url"`
	FormData       string                 `bigquery:"form_data"`
	VideoStatus    string                 `bigquery:"video_status"`
	VideoTaskID    string                 `bigquery:"video_task_id"`
	VideoURL       string                 `bigquery:"video_url"`
	VideoRemoteURL string                 `bigquery:"video_remote_url"`
	VideoError     string                 `bigquery:"video_error"`
	VideoWarning   string                 `bigquery:"video_warning"`
	VideoUpdatedAt bigquery.NullTimestamp `bigquery:"video_updated_at"`
	History        []string               `bigquery:"optimization_history"`
	CreatedAt      bigquery.NullTimestamp `bigquery:"created_at"`
	UpdatedAt      bigquery.NullTimestamp `bigquery:"updated_at"`
}

// GetFQN returns project.dataset.table for use in standard SQL.
func (s *BigQueryWorkspaceStore) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.WorkspaceTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// EnsureTable creates the workspace table if it does not exist.
func (s *BigQueryWorkspaceStore) EnsureTable(ctx context.Context) error {
	_, err := s.exec(ctx, fmt.Sprintf(QryCreateWorkspaceTable, s.GetFQN()))
	return err
}

func (s *BigQueryWorkspaceStore) Create(ctx context.Context, ws *model.Workspace) error {
	formData, err := json.Marshal(ws.FormData)
	if err != nil {
		return err
	}
	history, err := marshalHistory(ws.OptimizationHistory)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, fmt.Sprintf(QryInsertWorkspace, s.GetFQN()),
		bigquery.QueryParameter{Name: "id", Value: ws.ID},
		bigquery.QueryParameter{Name: "name", Value: ws.Name},
		bigquery.QueryParameter{Name: "image_url", Value: ws.ImageURL},
		bigquery.QueryParameter{Name: "form_data", Value: string(formData)},
		bigquery.QueryParameter{Name: "video_status", Value: string(ws.Video.Status)},
		bigquery.QueryParameter{Name: "video_task_id", Value: ws.Video.TaskID},
		bigquery.QueryParameter{Name: "video_url", Value: ws.Video.URL},
		bigquery.QueryParameter{Name: "video_remote_url", Value: ws.Video.RemoteURL},
		bigquery.QueryParameter{Name: "video_error", Value: ws.Video.Error},
		bigquery.QueryParameter{Name: "video_warning", Value: ws.Video.Warning},
		bigquery.QueryParameter{Name: "video_updated_at", Value: ws.Video.UpdatedAt},
		bigquery.QueryParameter{Name: "optimization_history", Value: history},
		bigquery.QueryParameter{Name: "created_at", Value: ws.CreatedAt},
		bigquery.QueryParameter{Name: "updated_at", Value: ws.UpdatedAt},
	)
	return err
}

func (s *BigQueryWorkspaceStore) Get(ctx context.Context, id string) (*model.Workspace, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryFindWorkspaceById, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	var row workspaceRow
	err = itr.Next(&row)
	if errors.Is(err, iterator.Done) {
		return nil, model.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toWorkspace()
}

func (s *BigQueryWorkspaceStore) SetVideo(ctx context.Context, id string, expectTaskID string, video model.VideoRecord) error {
	affected, err := s.exec(ctx, fmt.Sprintf(QrySetVideo, s.GetFQN()),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "expect_task_id", Value: expectTaskID},
		bigquery.QueryParameter{Name: "video_status", Value: string(video.Status)},
		bigquery.QueryParameter{Name: "video_task_id", Value: video.TaskID},
		bigquery.QueryParameter{Name: "video_url", Value: video.URL},
		bigquery.QueryParameter{Name: "video_remote_url", Value: video.RemoteURL},
		bigquery.QueryParameter{Name: "video_error", Value: video.Error},
		bigquery.QueryParameter{Name: "video_warning", Value: video.Warning},
		bigquery.QueryParameter{Name: "video_updated_at", Value: video.UpdatedAt},
	)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return model.ErrStaleTask
}

func (s *BigQueryWorkspaceStore) AppendHistory(ctx context.Context, id string, entry model.OptimizationHistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	affected, err := s.exec(ctx, fmt.Sprintf(QryAppendHistory, s.GetFQN()),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "entry", Value: string(raw)},
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.ErrWorkspaceNotFound
	}
	return nil
}

func (s *BigQueryWorkspaceStore) UpdateFormData(ctx context.Context, id string, formData model.FormData) error {
	raw, err := json.Marshal(formData)
	if err != nil {
		return err
	}
	affected, err := s.exec(ctx, fmt.Sprintf(QryUpdateFormData, s.GetFQN()),
		bigquery.QueryParameter{Name: "id", Value: id},
		bigquery.QueryParameter{Name: "form_data", Value: string(raw)},
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.ErrWorkspaceNotFound
	}
	return nil
}

// exec runs a DML or DDL statement and returns the number of affected rows.
func (s *BigQueryWorkspaceStore) exec(ctx context.Context, sql string, params ...bigquery.QueryParameter) (int64, error) {
	q := s.BigqueryClient.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return 0, err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		slog.ErrorContext(ctx, "bigquery statement failed", "job_id", job.ID(), "error", err)
		return 0, err
	}
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return stats.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

func marshalHistory(entries []model.OptimizationHistoryEntry) ([]string, error) {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, string(raw))
	}
	return out, nil
}

func (r *workspaceRow) toWorkspace() (*model.Workspace, error) {
	ws := &model.Workspace{
		ID:       r.ID,
		Name:     r.Name,
		ImageURL: r.ImageURL,
		Video: model.VideoRecord{
			Status:    model.VideoStatus(r.VideoStatus),
			TaskID:    r.VideoTaskID,
			URL:       r.VideoURL,
			RemoteURL: r.VideoRemoteURL,
			Error:     r.VideoError,
			Warning:   r.VideoWarning,
			UpdatedAt: timestampOrZero(r.VideoUpdatedAt),
		},
		OptimizationHistory: make([]model.OptimizationHistoryEntry, 0, len(r.History)),
		CreatedAt:           timestampOrZero(r.CreatedAt),
		UpdatedAt:           timestampOrZero(r.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(r.FormData), &ws.FormData); err != nil {
		return nil, fmt.Errorf("workspace %s has malformed form_data: %w", r.ID, err)
	}
	for i, raw := range r.History {
		var entry model.OptimizationHistoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("workspace %s has malformed history entry %d: %w", r.ID, i, err)
		}
		ws.OptimizationHistory = append(ws.OptimizationHistory, entry)
	}
	return ws, nil
}

func timestampOrZero(ts bigquery.NullTimestamp) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Timestamp
}
