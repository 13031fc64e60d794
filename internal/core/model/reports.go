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

package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinAssessmentLength is the shortest overall assessment accepted as a real
// evaluation rather than filler.
const MinAssessmentLength = 10

// Severity ranks a video analysis issue.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// IntentReport is the structured reading of what the producer wants, derived
// from the source image and the form data.
type IntentReport struct {
	SceneDescription        string   `json:"scene_description"`
	DesiredMood             string   `json:"desired_mood"`
	KeyElements             []string `json:"key_elements"`
	MotionExpectation       string   `json:"motion_expectation"`
	EnergyLevel             string   `json:"energy_level,omitempty"`
	ParameterAlignmentNotes string   `json:"parameter_alignment_notes,omitempty"`
	Confidence              float64  `json:"confidence"`

	missing []string // required numeric keys absent from the decoded JSON
}

// UnmarshalJSON records which required numbers were absent so Validate can
// tell a missing confidence from a reported zero.
func (r *IntentReport) UnmarshalJSON(data []byte) error {
	type plain IntentReport
	var p plain
	missing, err := decodeTracked(data, &p, "confidence")
	if err != nil {
		return err
	}
	*r = IntentReport(p)
	r.missing = missing
	return nil
}

// Validate checks the required fields and the confidence range.
func (r *IntentReport) Validate() error {
	const report = "intent_report"
	if err := requirePresent(report, "", r.missing); err != nil {
		return err
	}
	if err := requireText(report, "scene_description", r.SceneDescription); err != nil {
		return err
	}
	if err := requireText(report, "desired_mood", r.DesiredMood); err != nil {
		return err
	}
	if err := requireText(report, "motion_expectation", r.MotionExpectation); err != nil {
		return err
	}
	return requireUnit(report, "confidence", r.Confidence)
}

// IntentCorrections is an optional partial intent sent by the human together
// with a confirmation. Nil fields keep the analysed value.
type IntentCorrections struct {
	SceneDescription        *string  `json:"scene_description,omitempty"`
	DesiredMood             *string  `json:"desired_mood,omitempty"`
	KeyElements             []string `json:"key_elements,omitempty"`
	MotionExpectation       *string  `json:"motion_expectation,omitempty"`
	EnergyLevel             *string  `json:"energy_level,omitempty"`
	ParameterAlignmentNotes *string  `json:"parameter_alignment_notes,omitempty"`
}

// ApplyTo returns a copy of intent with the corrections applied.
func (c *IntentCorrections) ApplyTo(intent *IntentReport) *IntentReport {
	out := *intent
	if c == nil {
		return &out
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.SceneDescription, c.SceneDescription)
	set(&out.DesiredMood, c.DesiredMood)
	set(&out.MotionExpectation, c.MotionExpectation)
	set(&out.EnergyLevel, c.EnergyLevel)
	set(&out.ParameterAlignmentNotes, c.ParameterAlignmentNotes)
	if len(c.KeyElements) > 0 {
		out.KeyElements = append([]string(nil), c.KeyElements...)
	}
	return &out
}

// Issue is a single problem found in a generated video.
type Issue struct {
	Category          string   `json:"category"`
	Description       string   `json:"description"`
	Severity          Severity `json:"severity"`
	AffectedParameter string   `json:"affected_parameter,omitempty"`
}

// TechnicalQuality scores are all in [0,1]. Clarity and fluency are always
// reported; the others only when the model provides them.
type TechnicalQuality struct {
	Clarity     float64  `json:"clarity"`
	Fluency     float64  `json:"fluency"`
	Stability   *float64 `json:"stability,omitempty"`
	Composition *float64 `json:"composition,omitempty"`

	missing []string
}

func (q *TechnicalQuality) UnmarshalJSON(data []byte) error {
	type plain TechnicalQuality
	var p plain
	missing, err := decodeTracked(data, &p, "clarity", "fluency")
	if err != nil {
		return err
	}
	*q = TechnicalQuality(p)
	q.missing = missing
	return nil
}

// VideoAnalysisReport compares a generated video against the confirmed intent.
type VideoAnalysisReport struct {
	ContentMatchScore float64          `json:"content_match_score"`
	Issues            []Issue          `json:"issues"`
	TechnicalQuality  TechnicalQuality `json:"technical_quality"`
	Strengths         []string         `json:"strengths,omitempty"`
	OverallAssessment string           `json:"overall_assessment"`

	missing []string
}

func (r *VideoAnalysisReport) UnmarshalJSON(data []byte) error {
	type plain VideoAnalysisReport
	var p plain
	missing, err := decodeTracked(data, &p, "content_match_score", "technical_quality")
	if err != nil {
		return err
	}
	*r = VideoAnalysisReport(p)
	r.missing = missing
	return nil
}

// Validate checks score ranges, issue severities and the assessment text.
func (r *VideoAnalysisReport) Validate() error {
	const report = "video_analysis"
	if err := requirePresent(report, "", r.missing); err != nil {
		return err
	}
	if err := requirePresent(report, "technical_quality.", r.TechnicalQuality.missing); err != nil {
		return err
	}
	if err := requireUnit(report, "content_match_score", r.ContentMatchScore); err != nil {
		return err
	}
	for i, issue := range r.Issues {
		switch issue.Severity {
		case SeverityHigh, SeverityMedium, SeverityLow:
		default:
			return &ValidationError{
				Report: report,
				Field:  fmt.Sprintf("issues[%d].severity", i),
				Reason: fmt.Sprintf("must be one of high, medium, low (got %q)", issue.Severity),
			}
		}
	}
	if err := requireUnit(report, "technical_quality.clarity", r.TechnicalQuality.Clarity); err != nil {
		return err
	}
	if err := requireUnit(report, "technical_quality.fluency", r.TechnicalQuality.Fluency); err != nil {
		return err
	}
	if s := r.TechnicalQuality.Stability; s != nil {
		if err := requireUnit(report, "technical_quality.stability", *s); err != nil {
			return err
		}
	}
	if c := r.TechnicalQuality.Composition; c != nil {
		if err := requireUnit(report, "technical_quality.composition", *c); err != nil {
			return err
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.OverallAssessment)) < MinAssessmentLength {
		return &ValidationError{
			Report: report,
			Field:  "overall_assessment",
			Reason: fmt.Sprintf("must contain at least %d characters", MinAssessmentLength),
		}
	}
	return nil
}

// ParameterChange records a single changed FormData field. Values are loosely
// typed because models emit numbers and strings interchangeably.
type ParameterChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
	Reason   string `json:"reason"`
}

// OptimizationDecision is the proposed parameter update and its rationale.
type OptimizationDecision struct {
	WhyWrong       []string          `json:"why_wrong"`
	ParameterPatch map[string]any    `json:"parameter_patch"`
	Changes        []ParameterChange `json:"changes"`
	Confidence     float64           `json:"confidence"`
}

// Validate checks that the decision explains itself and proposes changes.
func (d *OptimizationDecision) Validate() error {
	const report = "optimization_decision"
	hasReason := false
	for _, w := range d.WhyWrong {
		if strings.TrimSpace(w) != "" {
			hasReason = true
			break
		}
	}
	if !hasReason {
		return &ValidationError{Report: report, Field: "why_wrong", Reason: "must list at least one reason"}
	}
	if len(d.Changes) == 0 {
		return &ValidationError{Report: report, Field: "changes", Reason: "must list at least one change"}
	}
	return requireUnit(report, "confidence", d.Confidence)
}

// Inconsistency describes a change record that does not match the form data
// it claims to modify.
type Inconsistency struct {
	Field    string `json:"field"`
	Expected string `json:"expected,omitempty"`
	Reported string `json:"reported,omitempty"`
	Reason   string `json:"reason"`
}

// CheckConsistency compares each change against the current form data. The
// results are informational; callers log them and carry on.
func (d *OptimizationDecision) CheckConsistency(current FormData) []Inconsistency {
	var out []Inconsistency
	for _, change := range d.Changes {
		actual, known := current.Value(change.Field)
		if !known {
			out = append(out, Inconsistency{Field: change.Field, Reason: "unknown form field"})
			continue
		}
		reported := FormatValue(change.OldValue)
		if reported != actual {
			out = append(out, Inconsistency{
				Field:    change.Field,
				Expected: actual,
				Reported: reported,
				Reason:   "old value does not match current form data",
			})
		}
	}
	for field := range d.ParameterPatch {
		if _, known := current.Value(field); !known {
			out = append(out, Inconsistency{Field: field, Reason: "patch targets unknown form field"})
		}
	}
	return out
}

// decodeTracked decodes data into v and returns the required keys that are
// absent or null.
func decodeTracked(data []byte, v any, required ...string) ([]string, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var missing []string
	for _, key := range required {
		if raw, ok := keys[key]; !ok || string(raw) == "null" {
			missing = append(missing, key)
		}
	}
	return missing, nil
}

func requirePresent(report, prefix string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Report: report, Field: prefix + missing[0], Reason: "is required"}
}

func requireText(report, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Report: report, Field: field, Reason: "is required"}
	}
	return nil
}

func requireUnit(report, field string, value float64) error {
	if value < 0 || value > 1 {
		return &ValidationError{Report: report, Field: field, Reason: fmt.Sprintf("must be within [0,1] (got %v)", value)}
	}
	return nil
}
