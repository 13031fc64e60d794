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

// Package main wires the video optimizer server. setup.go owns the shared
// state: configuration, cloud clients and the services built on them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/agents"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/gate"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/videogen"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/workflow"
)

// StateManager holds every long-lived dependency of the server.
type StateManager struct {
	config    *cloud.Config
	cloud     *cloud.ServiceClients
	store     services.WorkspaceStore
	artifacts *services.GCSArtifactStore
	hub       *broadcast.Hub
	poller    *videogen.TaskPoller
	optimizer *workflow.OptimizationWorkflow
}

var state = &StateManager{}

// SetupOS points the config loader at ./configs. GCP_RUNTIME is respected
// when already set and defaults to "local".
func SetupOS() error {
	if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
		return err
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads the configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config != nil {
		return state.config, nil
	}
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup os: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	state.config = config
	return config, nil
}

// InitState creates the cloud clients and every service, then starts the
// Pub/Sub listeners.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	store, err := newWorkspaceStore(ctx, config, cloudClients)
	if err != nil {
		return err
	}
	state.store = store

	state.artifacts = &services.GCSArtifactStore{
		StorageClient: cloudClients.StorageClient,
		IAMClient:     cloudClients.IAMClient,
		HTTPClient:    cloudClients.HTTPClient,
		SignerEmail:   config.Application.SignerServiceAccountEmail,
		Bucket:        config.Storage.VideoBucket,
		Prefix:        config.Storage.VideoPrefix,
		ImageBucket:   config.Storage.ImageBucket,
		ImagePrefix:   config.Storage.ImagePrefix,
	}
	state.hub = broadcast.NewHub(config.Server.EventBuffer)

	provider := videogen.NewVeoProvider(cloudClients.GenAIClient, config.VideoGeneration, cloudClients.HTTPClient)
	var artifacts services.ArtifactStore
	if config.Storage.VideoBucket != "" {
		artifacts = state.artifacts
	}
	state.poller = videogen.NewTaskPoller(
		store,
		provider,
		artifacts,
		state.hub,
		config.VideoGeneration.PollInterval(),
		config.VideoGeneration.Timeout())

	agentModel, ok := cloudClients.AgentModels[config.Optimization.AgentModel]
	if !ok {
		return fmt.Errorf("agent model %q is not configured", config.Optimization.AgentModel)
	}
	capabilities, err := agents.NewGeminiAgents(agentModel, config.PromptTemplates, cloudClients.HTTPClient)
	if err != nil {
		return err
	}
	state.optimizer = workflow.NewOptimizationWorkflow(
		store,
		capabilities,
		gate.NewConfirmationGate(),
		state.hub,
		workflow.OptionsFromConfig(config.Optimization))

	SetupListeners(ctx, config, cloudClients)
	return nil
}

// newWorkspaceStore uses BigQuery when a dataset is configured and keeps
// workspaces in memory otherwise.
func newWorkspaceStore(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients) (services.WorkspaceStore, error) {
	if config.BigQueryDataSource.DatasetName == "" {
		slog.WarnContext(ctx, "no dataset configured, workspaces are kept in memory")
		return services.NewMemoryWorkspaceStore(), nil
	}
	store := &services.BigQueryWorkspaceStore{
		BigqueryClient: cloudClients.BigQueryClient,
		DatasetName:    config.BigQueryDataSource.DatasetName,
		WorkspaceTable: config.BigQueryDataSource.WorkspaceTable,
	}
	if err := store.EnsureTable(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
