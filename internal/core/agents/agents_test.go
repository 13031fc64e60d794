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

package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shippedAgents(t *testing.T) *GeminiAgents {
	t.Helper()
	t.Setenv(cloud.EnvConfigFilePrefix, filepath.Join("..", "..", "..", "configs"))
	t.Setenv(cloud.EnvConfigRuntime, "test")
	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))
	a, err := NewGeminiAgents(nil, config.PromptTemplates, nil)
	require.NoError(t, err)
	return a
}

func TestShippedPromptsRender(t *testing.T) {
	a := shippedAgents(t)
	example := model.GetExampleOptimizationDecision()

	intent, err := render(a.intentTemplate, map[string]string{
		"FORM_DATA":    toJSON(model.FormData{MotionPrompt: "push in"}),
		"EXAMPLE_JSON": toJSON(model.GetExampleIntentReport()),
	})
	require.NoError(t, err)
	assert.Contains(t, intent, "<intent_report>")
	assert.Contains(t, intent, "push in")
	assert.Contains(t, intent, "wooden pier")

	decision, err := render(a.decisionTemplate, map[string]string{
		"FORM_DATA":          "{}",
		"INTENT_JSON":        "{}",
		"ANALYSIS_JSON":      "{}",
		"EXAMPLE_WHY_WRONG":  toJSON(example.WhyWrong),
		"EXAMPLE_PATCH":      toJSON(example.ParameterPatch),
		"EXAMPLE_CHANGES":    toJSON(example.Changes),
		"EXAMPLE_CONFIDENCE": toJSON(example.Confidence),
		"FORM_FIELDS":        toJSON(model.FormFieldNames()),
	})
	require.NoError(t, err)
	for _, tag := range []string{TagWhyWrong, TagParameterPatch, TagChanges, TagConfidence} {
		assert.Contains(t, decision, "<"+tag+">")
		assert.Contains(t, decision, "</"+tag+">")
	}
	assert.Contains(t, decision, "motion_intensity")
}

func TestBrokenTemplateFailsAtConstruction(t *testing.T) {
	_, err := NewGeminiAgents(nil, cloud.PromptTemplates{IntentPrompt: "{{ .FORM_DATA"}, nil)
	assert.ErrorContains(t, err, "intent prompt")
}

func TestImagePartReferencesCloudStorage(t *testing.T) {
	a := shippedAgents(t)

	part, err := a.imagePart(context.Background(), "gs://images/harbor.jpg")
	require.NoError(t, err)
	require.NotNil(t, part.FileData)
	assert.Equal(t, "gs://images/harbor.jpg", part.FileData.FileURI)
	assert.Equal(t, "image/jpeg", part.FileData.MIMEType)
}

func TestImagePartInlinesOtherURLs(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(png)
	}))
	defer server.Close()

	a := shippedAgents(t)
	a.httpClient = server.Client()

	part, err := a.imagePart(context.Background(), server.URL+"/harbor")
	require.NoError(t, err)
	require.NotNil(t, part.InlineData)
	assert.Equal(t, "image/png", part.InlineData.MIMEType)
	assert.Equal(t, png, part.InlineData.Data)

	_, err = a.imagePart(context.Background(), server.URL+"/missing\x7f")
	assert.Error(t, err)
}
