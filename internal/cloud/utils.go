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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"
	ConfigFileExtension = ".toml"
	ConfigSeparator     = "."
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // directory holding the config files
	EnvConfigRuntime    = "GCP_RUNTIME"       // selects .env.<runtime>.toml; defaults to "test"

	meterName = "github.com/jaycherian/gcp-go-video-optimizer"
)

// ErrEmptyResponse is returned when a model answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes configs/.env.toml and then .env.<runtime>.toml on top
// of it into baseConfig. Missing files are skipped; malformed files are errors.
func LoadConfig(baseConfig interface{}) error {
	prefix := os.Getenv(EnvConfigFilePrefix)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix = prefix + string(os.PathSeparator)
	}
	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	files := []string{
		prefix + ConfigFileBaseName + ConfigFileExtension,
		prefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension,
	}
	for _, file := range files {
		if !fileExists(file) {
			slog.Debug("configuration file not found", "file", file)
			continue
		}
		if _, err := toml.DecodeFile(file, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", file, err)
		}
		slog.Debug("loaded configuration file", "file", file)
	}
	return nil
}

// TokenCounters records prompt and response token usage of model calls.
type TokenCounters struct {
	Input  metric.Int64Counter
	Output metric.Int64Counter
}

// NewTokenCounters registers "<name>.token.input" and "<name>.token.output".
func NewTokenCounters(meter metric.Meter, name string) TokenCounters {
	in, err := meter.Int64Counter(fmt.Sprintf("%s.token.input", name))
	if err != nil {
		slog.Warn("failed to create token counter", "name", name, "error", err)
	}
	out, err := meter.Int64Counter(fmt.Sprintf("%s.token.output", name))
	if err != nil {
		slog.Warn("failed to create token counter", "name", name, "error", err)
	}
	return TokenCounters{Input: in, Output: out}
}

// GenerateMultiModalResponse sends content to model once and concatenates
// the text of every candidate part. Retrying is left to the caller.
func GenerateMultiModalResponse(ctx context.Context, counters TokenCounters, model *QuotaAwareGenerativeAIModel, content []*genai.Content) (string, error) {
	resp, err := model.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if resp.UsageMetadata != nil {
		if counters.Input != nil {
			counters.Input.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if counters.Output != nil {
			counters.Output.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// NewFilePart references a file by URI, e.g. a gs:// video.
func NewFilePart(uri, mimeType string) *genai.Part {
	return &genai.Part{FileData: &genai.FileData{FileURI: uri, MIMEType: mimeType}}
}

// NewInlinePart embeds raw bytes, e.g. a downloaded image.
func NewInlinePart(data []byte, mimeType string) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}
}
