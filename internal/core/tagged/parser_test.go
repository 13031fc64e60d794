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

package tagged_test

import (
	"encoding/json"
	"testing"

	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/model"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/core/tagged"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *sample
	}{
		{"plain", `<result>{"name":"a","score":0.5}</result>`, &sample{Name: "a", Score: 0.5}},
		{"surrounding prose", "Here you go:\n<result>\n {\"name\":\"b\"} \n</result>\nThanks.", &sample{Name: "b"}},
		{"fenced", "<result>\n```json\n{\"name\":\"c\",\"score\":1}\n```\n</result>", &sample{Name: "c", Score: 1}},
		{"bare fence", "<result>```{\"name\":\"d\"}```</result>", &sample{Name: "d"}},
		{"first of two", `<result>{"name":"first"}</result><result>{"name":"second"}</result>`, &sample{Name: "first"}},
		{"missing tag", `{"name":"x"}`, nil},
		{"unclosed tag", `<result>{"name":"x"}`, nil},
		{"invalid json", `<result>{"name":</result>`, nil},
		{"empty", `<result>   </result>`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tagged.Parse[sample](tt.text, "result"))
		})
	}
}

func TestParseOr(t *testing.T) {
	text := `<why_wrong>["too fast"]</why_wrong><confidence>0.7</confidence><changes>oops</changes>`

	assert.Equal(t, []string{"too fast"}, tagged.ParseOr(text, "why_wrong", []string{}))
	assert.Equal(t, 0.7, tagged.ParseOr(text, "confidence", 0.0))
	assert.Equal(t, []string{}, tagged.ParseOr(text, "changes", []string{}))
	assert.Equal(t, map[string]any{}, tagged.ParseOr(text, "parameter_patch", map[string]any{}))
}

func TestExtract(t *testing.T) {
	body, ok := tagged.Extract("<a.b>x</a.b>", "a.b")
	require.True(t, ok)
	assert.Equal(t, "x", body)

	_, ok = tagged.Extract("<aXb>x</aXb>", "a.b")
	assert.False(t, ok, "tag names are matched literally")
}

// roundTrip parses the tagged body as T and returns it re-marshalled.
func roundTrip[T any](t *testing.T, body, tag string) string {
	t.Helper()
	parsed := tagged.Parse[T]("Analysis follows.\n<"+tag+">\n"+body+"\n</"+tag+">\n", tag)
	require.NotNil(t, parsed)
	out, err := json.Marshal(parsed)
	require.NoError(t, err)
	return string(out)
}

func TestReportsSurviveRoundTrip(t *testing.T) {
	intent := `{
		"scene_description": "A harbor at dusk",
		"desired_mood": "calm",
		"key_elements": ["pier", "boats"],
		"motion_expectation": "slow push in",
		"energy_level": "low",
		"parameter_alignment_notes": "dolly matches the mood",
		"confidence": 0.82
	}`
	assert.JSONEq(t, intent, roundTrip[model.IntentReport](t, intent, "intent_report"))

	analysis := `{
		"content_match_score": 0.45,
		"issues": [
			{"category": "motion", "description": "camera shakes", "severity": "high", "affected_parameter": "motion_intensity"},
			{"category": "lighting", "description": "light flickers", "severity": "low"}
		],
		"technical_quality": {"clarity": 0.8, "fluency": 0.6, "stability": 0.3, "composition": 0.9},
		"strengths": ["faithful framing"],
		"overall_assessment": "Framing is faithful but the motion is far too energetic."
	}`
	parsed := tagged.Parse[model.VideoAnalysisReport]("<video_analysis>"+analysis+"</video_analysis>", "video_analysis")
	require.NotNil(t, parsed)
	assert.NoError(t, parsed.Validate())
	assert.JSONEq(t, analysis, roundTrip[model.VideoAnalysisReport](t, analysis, "video_analysis"))

	whyWrong := `["too fast", "light shifts"]`
	assert.JSONEq(t, whyWrong, roundTrip[[]string](t, whyWrong, "why_wrong"))

	patch := `{"motion_intensity": "low", "duration": 6}`
	assert.JSONEq(t, patch, roundTrip[map[string]any](t, patch, "parameter_patch"))

	changes := `[
		{"field": "motion_intensity", "old_value": "high", "new_value": "low", "reason": "calmer motion"},
		{"field": "duration", "old_value": 8, "new_value": 6, "reason": "shorter shot"}
	]`
	assert.JSONEq(t, changes, roundTrip[[]model.ParameterChange](t, changes, "changes"))

	assert.JSONEq(t, `0.7`, roundTrip[float64](t, "0.7", "confidence"))
}
