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

// Package agents wraps the generative model calls used by the optimization
// pipeline. Each capability takes structured input and returns the model's
// raw text; extracting the tagged JSON from that text is the caller's job.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"text/template"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"go.opentelemetry.io/otel"
	"google.golang.org/genai"
)

// Response tags the prompts ask the model to wrap its JSON in.
const (
	TagIntentReport   = "intent_report"
	TagVideoAnalysis  = "video_analysis"
	TagWhyWrong       = "why_wrong"
	TagParameterPatch = "parameter_patch"
	TagChanges        = "changes"
	TagConfidence     = "confidence"
)

type IntentInput struct {
	WorkspaceID string
	ImageURL    string
	FormData    model.FormData
}

type VideoAnalysisInput struct {
	WorkspaceID string
	VideoURL    string
	Intent      *model.IntentReport
	FormData    model.FormData
}

type DecisionInput struct {
	WorkspaceID   string
	FormData      model.FormData
	Intent        *model.IntentReport
	VideoAnalysis *model.VideoAnalysisReport
}

// Capabilities are the three model-backed analyses. Every call may fail and
// every successful call returns unparsed text.
type Capabilities interface {
	AnalyzeIntent(ctx context.Context, in IntentInput) (string, error)
	AnalyzeVideo(ctx context.Context, in VideoAnalysisInput) (string, error)
	Decide(ctx context.Context, in DecisionInput) (string, error)
}

// GeminiAgents implements Capabilities on a rate-limited Gemini model.
type GeminiAgents struct {
	model            *cloud.QuotaAwareGenerativeAIModel
	httpClient       *http.Client
	intentTemplate   *template.Template
	videoTemplate    *template.Template
	decisionTemplate *template.Template
	counters         cloud.TokenCounters
}

// NewGeminiAgents parses the prompt templates up front so a broken template
// fails at startup rather than mid-run.
func NewGeminiAgents(genModel *cloud.QuotaAwareGenerativeAIModel, templates cloud.PromptTemplates, httpClient *http.Client) (*GeminiAgents, error) {
	intentTemplate, err := template.New("intent").Parse(templates.IntentPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse intent prompt: %w", err)
	}
	videoTemplate, err := template.New("video_analysis").Parse(templates.VideoAnalysisPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse video analysis prompt: %w", err)
	}
	decisionTemplate, err := template.New("decision").Parse(templates.DecisionPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse decision prompt: %w", err)
	}
	return &GeminiAgents{
		model:            genModel,
		httpClient:       httpClient,
		intentTemplate:   intentTemplate,
		videoTemplate:    videoTemplate,
		decisionTemplate: decisionTemplate,
		counters:         cloud.NewTokenCounters(otel.Meter(cor.MeterName), "agents"),
	}, nil
}

func (a *GeminiAgents) AnalyzeIntent(ctx context.Context, in IntentInput) (string, error) {
	prompt, err := render(a.intentTemplate, map[string]string{
		"FORM_DATA":    toJSON(in.FormData),
		"EXAMPLE_JSON": toJSON(model.GetExampleIntentReport()),
	})
	if err != nil {
		return "", err
	}
	image, err := a.imagePart(ctx, in.ImageURL)
	if err != nil {
		return "", err
	}
	return a.generate(ctx, "intent", in.WorkspaceID, &genai.Part{Text: prompt}, image)
}

func (a *GeminiAgents) AnalyzeVideo(ctx context.Context, in VideoAnalysisInput) (string, error) {
	prompt, err := render(a.videoTemplate, map[string]string{
		"FORM_DATA":    toJSON(in.FormData),
		"INTENT_JSON":  toJSON(in.Intent),
		"EXAMPLE_JSON": toJSON(model.GetExampleVideoAnalysis()),
	})
	if err != nil {
		return "", err
	}
	videoURI := in.VideoURL
	if obj, ok := cloud.ParseGCSObject(in.VideoURL); ok {
		videoURI = obj.URI()
	}
	return a.generate(ctx, "video_analysis", in.WorkspaceID, &genai.Part{Text: prompt}, cloud.NewFilePart(videoURI, "video/mp4"))
}

func (a *GeminiAgents) Decide(ctx context.Context, in DecisionInput) (string, error) {
	example := model.GetExampleOptimizationDecision()
	prompt, err := render(a.decisionTemplate, map[string]string{
		"FORM_DATA":          toJSON(in.FormData),
		"INTENT_JSON":        toJSON(in.Intent),
		"ANALYSIS_JSON":      toJSON(in.VideoAnalysis),
		"EXAMPLE_WHY_WRONG":  toJSON(example.WhyWrong),
		"EXAMPLE_PATCH":      toJSON(example.ParameterPatch),
		"EXAMPLE_CHANGES":    toJSON(example.Changes),
		"EXAMPLE_CONFIDENCE": toJSON(example.Confidence),
		"FORM_FIELDS":        toJSON(model.FormFieldNames()),
	})
	if err != nil {
		return "", err
	}
	return a.generate(ctx, "decision", in.WorkspaceID, &genai.Part{Text: prompt})
}

func (a *GeminiAgents) generate(ctx context.Context, agent, workspaceID string, parts ...*genai.Part) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	out, err := cloud.GenerateMultiModalResponse(ctx, a.counters, a.model, contents)
	if err != nil {
		slog.ErrorContext(ctx, "agent call failed", "agent", agent, "workspace_id", workspaceID, "error", err)
		return "", err
	}
	slog.DebugContext(ctx, "agent call completed", "agent", agent, "workspace_id", workspaceID, "response_length", len(out))
	return out, nil
}

// imagePart references Cloud Storage images and inlines anything else.
func (a *GeminiAgents) imagePart(ctx context.Context, imageURL string) (*genai.Part, error) {
	if obj, ok := cloud.ParseGCSObject(imageURL); ok {
		mimeType := mime.TypeByExtension(path.Ext(obj.Name))
		if mimeType == "" {
			mimeType = "image/png"
		}
		return cloud.NewFilePart(obj.URI(), mimeType), nil
	}
	data, mimeType, err := cloud.Download(ctx, a.httpClient, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source image: %w", err)
	}
	return cloud.NewInlinePart(data, mimeType), nil
}

func render(t *template.Template, params map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func toJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
