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

package videogen_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/videogen"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 5 * time.Millisecond
	testTimeout  = 2 * time.Second
)

type pollerFixture struct {
	store     *services.MemoryWorkspaceStore
	provider  *testutil.ScriptedVideoProvider
	artifacts *testutil.FakeArtifactStore
	events    *testutil.EventRecorder
	poller    *videogen.TaskPoller
	ws        *model.Workspace
}

func newPollerFixture(t *testing.T, timeout time.Duration, replies ...testutil.StatusReply) *pollerFixture {
	t.Helper()
	f := &pollerFixture{
		store:     services.NewMemoryWorkspaceStore(),
		provider:  &testutil.ScriptedVideoProvider{Replies: replies},
		artifacts: &testutil.FakeArtifactStore{},
		events:    testutil.NewEventRecorder(),
		ws:        model.NewWorkspace("harbor", "gs://images/harbor.png", testutil.ExampleFormData()),
	}
	require.NoError(t, f.store.Create(context.Background(), f.ws))
	f.poller = videogen.NewTaskPoller(f.store, f.provider, f.artifacts, f.events, testInterval, timeout)
	return f
}

func (f *pollerFixture) stored(t *testing.T) model.VideoRecord {
	t.Helper()
	ws, err := f.store.Get(context.Background(), f.ws.ID)
	require.NoError(t, err)
	return ws.Video
}

func running() testutil.StatusReply {
	return testutil.StatusReply{Status: videogen.TaskStatus{Status: videogen.StatusRunning}}
}

func succeeded(url string) testutil.StatusReply {
	return testutil.StatusReply{Status: videogen.TaskStatus{Status: videogen.StatusSucceeded, VideoURL: url}}
}

func TestSubmitRecordsGeneratingTask(t *testing.T) {
	f := newPollerFixture(t, testTimeout, running())
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "task-1", handle.TaskID)
	assert.False(t, handle.SubmittedAt.IsZero())

	video := f.stored(t)
	assert.Equal(t, model.VideoGenerating, video.Status)
	assert.Equal(t, "task-1", video.TaskID)

	submitted := f.provider.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "gs://images/harbor.png", submitted[0].ImageURL)
	assert.Contains(t, submitted[0].Prompt, "push in along the pier")
	assert.Equal(t, []model.EventType{model.EventVideoStatus}, f.events.Types())
}

func TestPollCompletesAndRehosts(t *testing.T) {
	f := newPollerFixture(t, testTimeout, running(), running(), succeeded("gs://veo-output/harbor/sample_0.mp4"))
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoCompleted, record.Status)
	assert.Equal(t, testutil.HostedURL(f.ws.ID, "task-1"), record.URL)
	assert.Equal(t, "gs://veo-output/harbor/sample_0.mp4", record.RemoteURL)
	assert.Empty(t, record.Warning)
	assert.Equal(t, 3, f.provider.StatusCalls())
	assert.Equal(t, []string{"gs://veo-output/harbor/sample_0.mp4"}, f.artifacts.Sources())
	assert.Equal(t, record.URL, f.stored(t).URL)

	updates := f.events.OfType(model.EventVideoStatus)
	require.Len(t, updates, 2)
	last := updates[1].Data.(model.VideoStatusChange)
	assert.Equal(t, model.VideoCompleted, last.Status)
}

func TestPollKeepsProviderURLWhenRehostFails(t *testing.T) {
	f := newPollerFixture(t, testTimeout, succeeded("https://provider.example/v.mp4"))
	f.artifacts.Err = errors.New("bucket unavailable")
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoCompleted, record.Status)
	assert.Equal(t, "https://provider.example/v.mp4", record.URL)
	assert.Contains(t, record.Warning, "bucket unavailable")
}

func TestPollRecordsProviderFailure(t *testing.T) {
	f := newPollerFixture(t, testTimeout, running(),
		testutil.StatusReply{Status: videogen.TaskStatus{Status: videogen.StatusFailed, Message: "content policy"}})
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoFailed, record.Status)
	assert.Equal(t, "content policy", record.Error)
	assert.Equal(t, model.VideoFailed, f.stored(t).Status)
}

func TestPollTreatsUnknownStatusAsRunning(t *testing.T) {
	f := newPollerFixture(t, testTimeout,
		testutil.StatusReply{Status: videogen.TaskStatus{Status: "QUEUED"}},
		testutil.StatusReply{Status: videogen.TaskStatus{Status: "warming_up"}},
		succeeded("gs://veo-output/v.mp4"))
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoCompleted, record.Status)
	assert.Equal(t, 3, f.provider.StatusCalls())
}

func TestPollSucceededWithoutURLFails(t *testing.T) {
	f := newPollerFixture(t, testTimeout, succeeded(""))
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoFailed, record.Status)
	assert.Empty(t, record.URL)
}

func TestPollTimesOut(t *testing.T) {
	f := newPollerFixture(t, 40*time.Millisecond, running())
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoFailed, record.Status)
	assert.Contains(t, record.Error, "timed out")
	assert.Equal(t, model.VideoFailed, f.stored(t).Status)
}

func TestPollRetriesTransientStatusErrors(t *testing.T) {
	f := newPollerFixture(t, testTimeout,
		testutil.StatusReply{Err: errors.New("connection reset")},
		testutil.StatusReply{Err: &cloud.HTTPStatusError{URL: "https://veo", StatusCode: 503}},
		succeeded("gs://veo-output/v.mp4"))
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoCompleted, record.Status)
	assert.Equal(t, 3, f.provider.StatusCalls())
}

func TestPollStopsOnAuthError(t *testing.T) {
	f := newPollerFixture(t, testTimeout,
		testutil.StatusReply{Err: &cloud.HTTPStatusError{URL: "https://veo", StatusCode: 401}},
		succeeded("gs://veo-output/v.mp4"))
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	record := f.poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoFailed, record.Status)
	assert.Equal(t, 1, f.provider.StatusCalls())
}

func TestSupersededTaskIsDiscarded(t *testing.T) {
	f := newPollerFixture(t, testTimeout, succeeded("gs://veo-output/old.mp4"))
	ctx := context.Background()

	handle, err := f.poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.SetVideo(ctx, f.ws.ID, "", model.GeneratingVideo("task-newer")))

	f.poller.Poll(ctx, handle)

	video := f.stored(t)
	assert.Equal(t, model.VideoGenerating, video.Status)
	assert.Equal(t, "task-newer", video.TaskID)
	assert.Len(t, f.events.OfType(model.EventVideoStatus), 1)
}

// flakyVideoStore accepts the first okWrites video writes, then rejects the
// next failures writes. A negative failures rejects every later write.
type flakyVideoStore struct {
	*services.MemoryWorkspaceStore
	mu       sync.Mutex
	okWrites int
	failures int
	calls    int
}

func (s *flakyVideoStore) SetVideo(ctx context.Context, id, expectTaskID string, video model.VideoRecord) error {
	s.mu.Lock()
	s.calls++
	reject := s.calls > s.okWrites && (s.failures < 0 || s.calls <= s.okWrites+s.failures)
	s.mu.Unlock()
	if reject {
		return errors.New("firestore unavailable")
	}
	return s.MemoryWorkspaceStore.SetVideo(ctx, id, expectTaskID, video)
}

func (s *flakyVideoStore) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestTerminalWriteFailureIsPublished(t *testing.T) {
	f := newPollerFixture(t, testTimeout, succeeded("gs://veo-output/v.mp4"))
	store := &flakyVideoStore{MemoryWorkspaceStore: f.store, okWrites: 1, failures: -1}
	poller := videogen.NewTaskPoller(store, f.provider, f.artifacts, f.events, testInterval, testTimeout)
	ctx := context.Background()

	handle, err := poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	video := poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoCompleted, video.Status)
	assert.Equal(t, model.VideoGenerating, f.stored(t).Status)
	assert.Equal(t, 1+videogen.TerminalWriteAttempts, store.attempts())

	statuses := f.events.OfType(model.EventVideoStatus)
	require.Len(t, statuses, 2)
	change, ok := statuses[1].Data.(model.VideoStatusChange)
	require.True(t, ok)
	assert.Equal(t, model.VideoCompleted, change.Status)
	assert.Contains(t, change.PersistError, "firestore unavailable")
}

func TestTerminalWriteRecoversAfterTransientFailure(t *testing.T) {
	f := newPollerFixture(t, testTimeout, succeeded("gs://veo-output/v.mp4"))
	store := &flakyVideoStore{MemoryWorkspaceStore: f.store, okWrites: 1, failures: 1}
	poller := videogen.NewTaskPoller(store, f.provider, f.artifacts, f.events, testInterval, testTimeout)
	ctx := context.Background()

	handle, err := poller.Submit(ctx, f.ws.ID)
	require.NoError(t, err)
	poller.Poll(ctx, handle)

	assert.Equal(t, model.VideoCompleted, f.stored(t).Status)
	assert.Equal(t, 3, store.attempts())
	statuses := f.events.OfType(model.EventVideoStatus)
	require.Len(t, statuses, 2)
	change := statuses[1].Data.(model.VideoStatusChange)
	assert.Empty(t, change.PersistError)
}

func TestSubmitFailureMarksVideoFailed(t *testing.T) {
	f := newPollerFixture(t, testTimeout)
	f.provider.SubmitErr = errors.New("quota exceeded")

	_, err := f.poller.Submit(context.Background(), f.ws.ID)
	require.Error(t, err)

	video := f.stored(t)
	assert.Equal(t, model.VideoFailed, video.Status)
	assert.Contains(t, video.Error, "quota exceeded")
	assert.Equal(t, []model.EventType{model.EventVideoStatus}, f.events.Types())
}

func TestSubmitUnknownWorkspace(t *testing.T) {
	f := newPollerFixture(t, testTimeout)

	_, err := f.poller.Submit(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrWorkspaceNotFound)
	assert.Empty(t, f.provider.Submitted())
}

func TestStartPollsInBackground(t *testing.T) {
	f := newPollerFixture(t, testTimeout, running(), succeeded("gs://veo-output/v.mp4"))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.poller.Start(ctx, f.ws.ID)
	require.NoError(t, err)
	cancel()
	f.poller.Wait()

	assert.Equal(t, model.VideoCompleted, f.stored(t).Status)
}
