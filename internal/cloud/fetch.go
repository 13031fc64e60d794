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
	"fmt"
	"io"
	"net/http"

	"github.com/h2non/filetype"
)

// MaxDownloadBytes bounds Download so a misbehaving origin cannot exhaust memory.
const MaxDownloadBytes = 512 << 20

// Download fetches url and sniffs its MIME type from the content, falling
// back to the Content-Type header when the bytes are not recognised.
func Download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", url, MaxDownloadBytes)
	}
	return data, DetectMIMEType(data, resp.Header.Get("Content-Type")), nil
}

// DetectMIMEType returns the sniffed type of data, or fallback when unknown.
func DetectMIMEType(data []byte, fallback string) string {
	kind, err := filetype.Match(data)
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if fallback == "" {
		return "application/octet-stream"
	}
	return fallback
}
