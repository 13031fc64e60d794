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
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// ErrUnauthorized marks a credential or permission failure that retrying
// will not fix.
var ErrUnauthorized = errors.New("unauthorized")

// HTTPStatusError is returned by plain HTTP fetches with a non-2xx status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return "unexpected status " + http.StatusText(e.StatusCode) + " fetching " + e.URL
}

// IsAuthError reports whether err is an authentication or authorization
// failure from any of the clients used by this module.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return isAuthStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return isAuthStatus(apiErrPtr.Code)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return isAuthStatus(gErr.Code)
	}
	var hErr *HTTPStatusError
	if errors.As(err, &hErr) {
		return isAuthStatus(hErr.StatusCode)
	}
	return false
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
