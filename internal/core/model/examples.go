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

// This file provides hardcoded report instances. They are rendered into the
// agent prompts as few-shot examples of the JSON expected inside each tag, so
// the model returns output that parses and validates.
package model

// GetExampleIntentReport returns a sample intent for a still of a harbor at dusk.
func GetExampleIntentReport() *IntentReport {
	return &IntentReport{
		SceneDescription:        "A small fishing harbor at dusk with boats moored along a wooden pier and warm lights reflecting on calm water.",
		DesiredMood:             "calm, nostalgic",
		KeyElements:             []string{"wooden pier", "fishing boats", "lamp reflections", "orange sky"},
		MotionExpectation:       "Slow push-in along the pier while the water ripples gently and the lamps flicker.",
		EnergyLevel:             "low",
		ParameterAlignmentNotes: "Slow dolly matches the calm mood; high motion intensity would conflict with it.",
		Confidence:              0.82,
	}
}

// GetExampleVideoAnalysis returns a sample analysis of a video that drifted
// from the intent above.
func GetExampleVideoAnalysis() *VideoAnalysisReport {
	stability := 0.55
	return &VideoAnalysisReport{
		ContentMatchScore: 0.61,
		Issues: []Issue{
			{
				Category:          "motion",
				Description:       "Camera moves quickly and shakes, which breaks the calm mood.",
				Severity:          SeverityHigh,
				AffectedParameter: "motion_intensity",
			},
			{
				Category:    "lighting",
				Description: "Sky turns daylight blue halfway through the clip.",
				Severity:    SeverityMedium,
			},
		},
		TechnicalQuality: TechnicalQuality{Clarity: 0.8, Fluency: 0.6, Stability: &stability},
		Strengths:        []string{"pier and boats match the source image"},
		OverallAssessment: "The composition is faithful to the image but the fast, shaky camera and the lighting shift " +
			"work against the intended calm dusk atmosphere.",
	}
}

// GetExampleOptimizationDecision returns a sample decision fixing the analysis above.
func GetExampleOptimizationDecision() *OptimizationDecision {
	return &OptimizationDecision{
		WhyWrong: []string{
			"motion_intensity was set to high, producing fast shaky movement",
			"the motion prompt did not pin the time of day",
		},
		ParameterPatch: map[string]any{
			"motion_intensity": "low",
			"motion_prompt":    "slow steady push-in along the pier at dusk, lamps flickering, gentle ripples",
		},
		Changes: []ParameterChange{
			{Field: "motion_intensity", OldValue: "high", NewValue: "low", Reason: "calm mood needs slow motion"},
			{Field: "motion_prompt", OldValue: "push in along the pier", NewValue: "slow steady push-in along the pier at dusk, lamps flickering, gentle ripples", Reason: "keep dusk lighting throughout"},
		},
		Confidence: 0.74,
	}
}
