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

// Package tagged extracts JSON payloads that a generative model wrapped in
// XML-like tags, for example <intent_report>{...}</intent_report>. Models
// routinely add prose around the tags or markdown fences inside them; both
// are tolerated. Parsing never fails loudly: a missing tag or malformed JSON
// yields nil (or the supplied default) and the caller decides what that means.
package tagged

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

var (
	patternsMu sync.Mutex
	patterns   = map[string]*regexp.Regexp{}
)

func pattern(tag string) *regexp.Regexp {
	patternsMu.Lock()
	defer patternsMu.Unlock()
	if re, ok := patterns[tag]; ok {
		return re
	}
	q := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + q + `>\s*(.*?)\s*</` + q + `>`)
	patterns[tag] = re
	return re
}

// Extract returns the trimmed body of the first <tag>...</tag> section.
func Extract(text, tag string) (string, bool) {
	m := pattern(tag).FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return stripFences(m[1]), true
}

// stripFences removes a surrounding ```json ... ``` block.
func stripFences(body string) string {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// drop the language hint on the opening fence
		if !strings.ContainsAny(body[:nl], "{[\"") {
			body = body[nl+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

// Parse decodes the JSON inside tag into a new T. It returns nil when the tag
// is absent, empty, or does not hold valid JSON for T.
func Parse[T any](text, tag string) *T {
	body, ok := Extract(text, tag)
	if !ok || body == "" {
		return nil
	}
	out := new(T)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return nil
	}
	return out
}

// ParseOr is Parse with a fallback value.
func ParseOr[T any](text, tag string, def T) T {
	if v := Parse[T](text, tag); v != nil {
		return *v
	}
	return def
}
