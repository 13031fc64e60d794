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

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-video-optimizer/internal/cloud"
)

// ArtifactStore copies a provider's video into storage the service controls.
type ArtifactStore interface {
	// Rehost returns the hosted URL of the copy of sourceURL.
	Rehost(ctx context.Context, workspaceID, taskID, sourceURL string) (string, error)
}

// GCSArtifactStore re-hosts videos into a Cloud Storage bucket and signs
// playback URLs for them.
type GCSArtifactStore struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	HTTPClient    *http.Client
	SignerEmail   string
	Bucket        string
	Prefix        string
	ImageBucket   string
	ImagePrefix   string
}

// ErrUnsupportedImage is returned for uploads that are not a known image type.
var ErrUnsupportedImage = errors.New("upload is not a supported image")

// ObjectName is stable per task so a redelivered completion overwrites the
// same object.
func (s *GCSArtifactStore) ObjectName(workspaceID, taskID string) string {
	return path.Join(s.Prefix, workspaceID, uuid.NewSHA1(uuid.NameSpaceURL, []byte(taskID)).String()+".mp4")
}

// Rehost copies gs:// sources server side and downloads anything else.
func (s *GCSArtifactStore) Rehost(ctx context.Context, workspaceID, taskID, sourceURL string) (string, error) {
	target := cloud.GCSObject{Bucket: s.Bucket, Name: s.ObjectName(workspaceID, taskID)}
	dst := s.StorageClient.Bucket(target.Bucket).Object(target.Name)

	if src, ok := cloud.ParseGCSObject(sourceURL); ok {
		copier := dst.CopierFrom(s.StorageClient.Bucket(src.Bucket).Object(src.Name))
		if _, err := copier.Run(ctx); err != nil {
			return "", fmt.Errorf("failed to copy %s to %s: %w", sourceURL, target.URI(), err)
		}
	} else {
		data, mimeType, err := cloud.Download(ctx, s.HTTPClient, sourceURL)
		if err != nil {
			return "", err
		}
		w := dst.NewWriter(ctx)
		w.ContentType = mimeType
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return "", fmt.Errorf("failed to upload %s: %w", target.URI(), err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", target.URI(), err)
		}
	}

	slog.InfoContext(ctx, "video re-hosted", "workspace_id", workspaceID, "task_id", taskID, "object", target.URI())
	return target.PublicURL(), nil
}

// SignedURL returns a V4 GET URL for a hosted video, signed through the IAM
// credentials API when a signer account is configured.
func (s *GCSArtifactStore) SignedURL(ctx context.Context, hostedURL string, expires time.Duration) (string, error) {
	obj, ok := cloud.ParseGCSObject(hostedURL)
	if !ok {
		return "", fmt.Errorf("not a cloud storage url: %s", hostedURL)
	}
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", obj.Bucket, obj.Name, err)
	}
	return u, nil
}

// UploadImage stores a source image under a fresh name and returns its gs://
// URI, which generation and intent analysis read directly.
func (s *GCSArtifactStore) UploadImage(ctx context.Context, data []byte) (string, error) {
	if s.ImageBucket == "" {
		return "", errors.New("no image bucket configured")
	}
	kind, err := filetype.Image(data)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedImage
	}
	target := cloud.GCSObject{
		Bucket: s.ImageBucket,
		Name:   path.Join(s.ImagePrefix, uuid.New().String()+"."+kind.Extension),
	}

	w := s.StorageClient.Bucket(target.Bucket).Object(target.Name).NewWriter(ctx)
	w.ContentType = kind.MIME.Value
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", target.URI(), err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", target.URI(), err)
	}
	slog.InfoContext(ctx, "source image uploaded", "object", target.URI(), "bytes", len(data))
	return target.URI(), nil
}
