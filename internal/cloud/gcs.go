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
	"fmt"
	"net/url"
	"strings"
)

const (
	gcsScheme = "gs://"
	// PublicStorageHost serves objects at https://storage.googleapis.com/<bucket>/<object>.
	PublicStorageHost = "storage.googleapis.com"
	// mtlsStorageHost is the authenticated browser endpoint, treated like PublicStorageHost.
	mtlsStorageHost = "storage.mtls.cloud.google.com"
)

// GCSObject identifies a Cloud Storage object.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// URI returns the gs:// form of the object.
func (o GCSObject) URI() string {
	return gcsScheme + o.Bucket + "/" + o.Name
}

// PublicURL returns the https form of the object on the storage host.
func (o GCSObject) PublicURL() string {
	return fmt.Sprintf("https://%s/%s/%s", PublicStorageHost, o.Bucket, o.Name)
}

// ParseGCSObject accepts gs://bucket/name and the https storage host forms.
func ParseGCSObject(raw string) (GCSObject, bool) {
	var rest string
	if strings.HasPrefix(raw, gcsScheme) {
		rest = strings.TrimPrefix(raw, gcsScheme)
	} else {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme != "https" || (u.Host != PublicStorageHost && u.Host != mtlsStorageHost) {
			return GCSObject{}, false
		}
		rest = strings.TrimPrefix(u.Path, "/")
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, false
	}
	return GCSObject{Bucket: bucket, Name: name}, true
}
