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

// Package cloud holds the configuration, Google Cloud clients and shared
// helpers (Gemini calls, retries, Pub/Sub listeners, storage URLs) used by the
// video generation and optimization services.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings leaves every harm category unblocked. Inputs are the
// producer's own images and generated videos.
var DefaultSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
}

// BigQueryDataSource locates the workspace table.
type BigQueryDataSource struct {
	DatasetName    string `toml:"dataset"`
	WorkspaceTable string `toml:"workspace_table"`
}

// PromptTemplates are text/template sources for the three agents.
type PromptTemplates struct {
	IntentPrompt        string `toml:"intent"`
	VideoAnalysisPrompt string `toml:"video_analysis"`
	DecisionPrompt      string `toml:"decision"`
}

// VertexAiLLMModel configures one generative model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // requests per second
}

// TopicSubscription configures a Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Storage configures where source images are uploaded and generated videos
// are re-hosted.
type Storage struct {
	VideoBucket      string `toml:"video_bucket"`
	VideoPrefix      string `toml:"video_prefix"`
	SignedURLMinutes int    `toml:"signed_url_minutes"`
	ImageBucket      string `toml:"image_bucket"`
	ImagePrefix      string `toml:"image_prefix"`
}

// SignedURLExpiry defaults to 15 minutes.
func (s Storage) SignedURLExpiry() time.Duration {
	return minutesOr(s.SignedURLMinutes, 15)
}

// Optimization configures the optimization pipeline.
type Optimization struct {
	AgentModel                 string `toml:"agent_model"` // key into AgentModels
	ConfirmationTimeoutSeconds int    `toml:"confirmation_timeout_seconds"`
	VideoAnalysisMaxAttempts   int    `toml:"video_analysis_max_attempts"`
	VideoAnalysisBackoffMillis int    `toml:"video_analysis_backoff_millis"`
}

// ConfirmationTimeout defaults to five minutes.
func (o Optimization) ConfirmationTimeout() time.Duration {
	return secondsOr(o.ConfirmationTimeoutSeconds, 300)
}

// VideoAnalysisBackoff is the base delay of the vision retry, defaulting to
// DefaultBaseDelay.
func (o Optimization) VideoAnalysisBackoff() time.Duration {
	if o.VideoAnalysisBackoffMillis <= 0 {
		return DefaultBaseDelay
	}
	return time.Duration(o.VideoAnalysisBackoffMillis) * time.Millisecond
}

// VideoGeneration configures the image-to-video provider and the poller.
type VideoGeneration struct {
	Model               string `toml:"model"`
	OutputGCSURI        string `toml:"output_gcs_uri"`
	Subscription        string `toml:"subscription"` // key into TopicSubscriptions
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	GenerateAudio       bool   `toml:"generate_audio"`
}

// PollInterval defaults to ten seconds.
func (v VideoGeneration) PollInterval() time.Duration {
	return secondsOr(v.PollIntervalSeconds, 10)
}

// Timeout defaults to ten minutes.
func (v VideoGeneration) Timeout() time.Duration {
	return secondsOr(v.TimeoutSeconds, 600)
}

// Server configures the HTTP listener.
type Server struct {
	Port           string   `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	EventBuffer    int      `toml:"event_buffer"`
}

// Config is the root of the TOML configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
		LogLevel                  string `toml:"log_level"`
	} `toml:"application"`
	Server             Server                       `toml:"server"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
	Optimization       Optimization                 `toml:"optimization"`
	VideoGeneration    VideoGeneration              `toml:"video_generation"`
}

// NewConfig returns a Config with its maps initialised for decoding.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func minutesOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Minute
}
