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

// Package api exposes workspaces, video generation and optimization runs
// over HTTP, and streams workspace events over a WebSocket.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/broadcast"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/services"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/videogen"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/workflow"
)

// VideoGenerator starts generation tasks.
type VideoGenerator interface {
	Start(ctx context.Context, workspaceID string) (videogen.TaskHandle, error)
}

// Optimizer accepts optimization runs and routes confirmations to them.
type Optimizer interface {
	Start(ctx context.Context, workspaceID string) error
	Confirm(workspaceID string, confirmed bool, corrections *model.IntentCorrections) bool
}

// URLSigner turns a hosted video URL into a time-limited playback URL.
type URLSigner interface {
	SignedURL(ctx context.Context, hostedURL string, expires time.Duration) (string, error)
}

// ImageUploader stores an uploaded source image and returns its URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte) (string, error)
}

// MaxImageBytes bounds source image uploads.
const MaxImageBytes = 20 << 20

// Handlers holds the dependencies of every route. Signer may be nil, in
// which case the stream endpoint returns the hosted URL unchanged.
type Handlers struct {
	Store          services.WorkspaceStore
	Generator      VideoGenerator
	Optimizer      Optimizer
	Hub            *broadcast.Hub
	Signer         URLSigner
	Uploader       ImageUploader
	SignedURLTTL   time.Duration
	AllowedOrigins []string

	upgrader websocket.Upgrader
}

type createWorkspaceRequest struct {
	Name     string         `json:"name"`
	ImageURL string         `json:"image_url" binding:"required"`
	FormData model.FormData `json:"form_data"`
}

type confirmRequest struct {
	Confirmed   bool                     `json:"confirmed"`
	Corrections *model.IntentCorrections `json:"corrections,omitempty"`
}

// Register mounts the workspace routes on r.
func (h *Handlers) Register(r *gin.RouterGroup) {
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	r.POST("/images", h.uploadImage)

	workspaces := r.Group("/workspaces")
	{
		workspaces.POST("", h.createWorkspace)
		workspaces.GET("/:id", h.getWorkspace)
		workspaces.PATCH("/:id/form", h.updateForm)
		workspaces.POST("/:id/video", h.generateVideo)
		workspaces.GET("/:id/video/stream", h.streamVideo)
		workspaces.POST("/:id/optimize", h.optimize)
		workspaces.POST("/:id/confirm", h.confirm)
		workspaces.POST("/:id/optimizations/:index/apply", h.applyOptimization)
		workspaces.GET("/:id/events", h.events)
	}
}

func (h *Handlers) createWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := model.NewWorkspace(req.Name, req.ImageURL, req.FormData)
	if err := h.Store.Create(c, ws); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

// uploadImage accepts one multipart "file" and returns the image_url to use
// when creating a workspace.
func (h *Handlers) uploadImage(c *gin.Context) {
	if h.Uploader == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "image uploads are not configured"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "get form err: " + err.Error()})
		return
	}
	if header.Size > MaxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes))
	if err != nil {
		h.fail(c, err)
		return
	}
	url, err := h.Uploader.UploadImage(c, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"image_url": url})
}

func (h *Handlers) getWorkspace(c *gin.Context) {
	ws, err := h.Store.Get(c, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (h *Handlers) updateForm(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws, err := h.Store.Get(c, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	updated, unknown := ws.FormData.Apply(patch)
	if len(unknown) > 0 {
		sort.Strings(unknown)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown form fields: " + strings.Join(unknown, ", ")})
		return
	}
	if err := h.Store.UpdateFormData(c, ws.ID, updated); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"form_data": updated})
}

func (h *Handlers) generateVideo(c *gin.Context) {
	handle, err := h.Generator.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handle)
}

func (h *Handlers) streamVideo(c *gin.Context) {
	ws, err := h.Store.Get(c, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ws.HasCompletedVideo() {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace has no completed video"})
		return
	}
	if h.Signer == nil {
		c.JSON(http.StatusOK, gin.H{"url": ws.Video.URL})
		return
	}
	signed, err := h.Signer.SignedURL(c, ws.Video.URL, h.SignedURLTTL)
	if err != nil {
		slog.WarnContext(c, "could not sign video url, serving it unsigned", "workspace_id", ws.ID, "error", err)
		c.JSON(http.StatusOK, gin.H{"url": ws.Video.URL})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signed})
}

func (h *Handlers) optimize(c *gin.Context) {
	id := c.Param("id")
	if err := h.Optimizer.Start(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workspace_id": id, "accepted": true})
}

func (h *Handlers) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if !h.Optimizer.Confirm(id, req.Confirmed, req.Corrections) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no confirmation pending for workspace"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace_id": id, "confirmed": req.Confirmed})
}

func (h *Handlers) applyOptimization(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be a non-negative integer"})
		return
	}
	ws, err := h.Store.Get(c, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if index >= len(ws.OptimizationHistory) || ws.OptimizationHistory[index].Decision == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "optimization not found"})
		return
	}
	updated, ignored := ws.FormData.Apply(ws.OptimizationHistory[index].Decision.ParameterPatch)
	sort.Strings(ignored)
	if err := h.Store.UpdateFormData(c, ws.ID, updated); err != nil {
		h.fail(c, err)
		return
	}
	slog.InfoContext(c, "optimization applied", "workspace_id", ws.ID, "index", index, "ignored_fields", ignored)
	c.JSON(http.StatusOK, gin.H{"form_data": updated, "ignored_fields": ignored})
}

// fail maps domain errors onto status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrWorkspaceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnsupportedImage):
		status = http.StatusUnsupportedMediaType
	default:
		slog.ErrorContext(c, "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
