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
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"google.golang.org/genai"
)

// VeoProvider runs generation as Vertex AI long-running operations. The
// operation name is the task id.
type VeoProvider struct {
	Models        *genai.Models
	Operations    *genai.Operations
	Model         string
	OutputGCSURI  string
	GenerateAudio bool
	HTTPClient    *http.Client
}

// NewVeoProvider builds a provider on an existing genai client.
func NewVeoProvider(client *genai.Client, config cloud.VideoGeneration, httpClient *http.Client) *VeoProvider {
	return &VeoProvider{
		Models:        client.Models,
		Operations:    client.Operations,
		Model:         config.Model,
		OutputGCSURI:  config.OutputGCSURI,
		GenerateAudio: config.GenerateAudio,
		HTTPClient:    httpClient,
	}
}

func (p *VeoProvider) Submit(ctx context.Context, req GenerationRequest) (string, error) {
	image, err := p.image(ctx, req.ImageURL)
	if err != nil {
		return "", err
	}
	config := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.FormData.AspectRatio,
		GenerateAudio:  genai.Ptr(p.GenerateAudio),
	}
	if p.OutputGCSURI != "" {
		config.OutputGCSURI = strings.TrimSuffix(p.OutputGCSURI, "/") + "/" + req.WorkspaceID + "/"
	}
	if seconds, ok := leadingInt(req.FormData.Duration); ok {
		config.DurationSeconds = genai.Ptr(seconds)
	}
	if fps, ok := leadingInt(req.FormData.FrameRate); ok {
		config.FPS = genai.Ptr(fps)
	}

	op, err := p.Models.GenerateVideos(ctx, p.Model, req.Prompt, image, config)
	if err != nil {
		return "", fmt.Errorf("failed to submit video generation: %w", err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("video generation returned an operation without a name")
	}
	return op.Name, nil
}

func (p *VeoProvider) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	op, err := p.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: taskID}, nil)
	if err != nil {
		return TaskStatus{}, err
	}
	return operationStatus(op), nil
}

// operationStatus maps a long-running operation onto the provider statuses.
func operationStatus(op *genai.GenerateVideosOperation) TaskStatus {
	if !op.Done {
		return TaskStatus{Status: StatusRunning}
	}
	if op.Error != nil {
		msg, _ := op.Error["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("%v", op.Error)
		}
		return TaskStatus{Status: StatusFailed, Message: msg}
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		msg := "no video was generated"
		if op.Response != nil && op.Response.RAIMediaFilteredCount > 0 {
			msg = fmt.Sprintf("video was filtered by safety policy: %s", strings.Join(op.Response.RAIMediaFilteredReasons, "; "))
		}
		return TaskStatus{Status: StatusFailed, Message: msg}
	}
	video := op.Response.GeneratedVideos[0].Video
	if video == nil || video.URI == "" {
		return TaskStatus{Status: StatusFailed, Message: "video was returned inline; configure an output location"}
	}
	return TaskStatus{Status: StatusSucceeded, VideoURL: video.URI}
}

// image references Cloud Storage images directly and inlines anything else.
func (p *VeoProvider) image(ctx context.Context, imageURL string) (*genai.Image, error) {
	if obj, ok := cloud.ParseGCSObject(imageURL); ok {
		return &genai.Image{GCSURI: obj.URI(), MIMEType: mimeFromName(obj.Name)}, nil
	}
	data, mimeType, err := cloud.Download(ctx, p.HTTPClient, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source image: %w", err)
	}
	return &genai.Image{ImageBytes: data, MIMEType: mimeType}, nil
}

func mimeFromName(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "image/png"
}

// leadingInt reads values such as "5", "5s" or "24 fps".
func leadingInt(value string) (int32, bool) {
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(value[:end], 10, 32)
	if err != nil || n <= 0 {
		return 0, false
	}
	return int32(n), true
}
