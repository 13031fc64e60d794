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

package broadcast_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesWorkspaceSubscribersOnly(t *testing.T) {
	hub := broadcast.NewHub(4)
	a := hub.Subscribe("ws-a")
	b := hub.Subscribe("ws-b")
	defer a.Close()
	defer b.Close()

	hub.Publish(context.Background(), model.NewEvent(model.EventAgentStart, "ws-a", nil))

	require.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 0)
	event := <-a.Events()
	assert.Equal(t, model.EventAgentStart, event.Type)
	assert.False(t, event.Timestamp.IsZero())
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := broadcast.NewHub(1)
	hub.Publish(context.Background(), model.Event{Type: model.EventAgentStep, WorkspaceID: "nobody"})
	assert.Equal(t, 0, hub.SubscriberCount("nobody"))
}

func TestFullBufferDropsWithoutBlocking(t *testing.T) {
	hub := broadcast.NewHub(2)
	s := hub.Subscribe("ws")
	defer s.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(context.Background(), model.NewEvent(model.EventAgentStep, "ws", i))
	}

	assert.Len(t, s.Events(), 2)
	assert.Equal(t, 0, (<-s.Events()).Data)
	assert.Equal(t, 1, (<-s.Events()).Data)
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := broadcast.NewHub(1)
	s := hub.Subscribe("ws")
	assert.Equal(t, 1, hub.SubscriberCount("ws"))

	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.SubscriberCount("ws"))
	_, open := <-s.Events()
	assert.False(t, open)

	hub.Publish(context.Background(), model.NewEvent(model.EventAgentStep, "ws", nil))
}

func TestConcurrentPublishAndClose(t *testing.T) {
	hub := broadcast.NewHub(8)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		s := hub.Subscribe("ws")
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish(context.Background(), model.NewEvent(model.EventAgentStep, "ws", j))
			}
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.SubscriberCount("ws"))
}
