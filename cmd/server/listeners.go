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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/commands"
)

// SetupListeners attaches the generation trigger to the subscription named
// by video_generation.subscription and starts receiving.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients) {
	key := config.VideoGeneration.Subscription
	if key == "" {
		return
	}
	listener, ok := cloudClients.PubSubListeners[key]
	if !ok {
		slog.WarnContext(ctx, "generation subscription is not configured", "subscription", key)
		return
	}
	listener.SetCommand(commands.NewGenerationTrigger("generation-trigger", state.poller))
	listener.Listen(ctx)
}
