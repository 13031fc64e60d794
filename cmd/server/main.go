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
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/api"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/telemetry"
)

const (
	serviceName  = "video-optimizer-server"
	drainTimeout = 30 * time.Second
)

func main() {
	config, err := GetConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	telemetry.SetupLogging(config.Application.LogLevel)
	slog.Info("Logging initialized", "level", config.Application.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		os.Exit(1)
	}
	slog.Info("Tracing initialized")

	if err := InitState(ctx, config); err != nil {
		slog.Error("Failed to initialize state", "error", err)
		os.Exit(1)
	}
	defer state.cloud.Close()
	slog.Info("Initialized State")

	handlers := &api.Handlers{
		Store:          state.store,
		Generator:      state.poller,
		Optimizer:      state.optimizer,
		Hub:            state.hub,
		SignedURLTTL:   config.Storage.SignedURLExpiry(),
		AllowedOrigins: config.Server.AllowedOrigins,
	}
	if config.Storage.VideoBucket != "" {
		handlers.Signer = state.artifacts
	}
	if config.Storage.ImageBucket != "" {
		handlers.Uploader = state.artifacts
	}
	r := api.NewRouter(serviceName, handlers)

	port := config.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 20 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("Server ready", "port", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}

	// Stop the listeners, then give background polls and runs a bounded
	// window to record their outcome.
	cancel()
	drained := make(chan struct{})
	go func() {
		state.poller.Wait()
		state.optimizer.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		slog.Warn("background work still running at exit", "waited", drainTimeout)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		slog.Warn("failed to flush telemetry", "error", err)
	}
	slog.Info("Server exiting")
}
