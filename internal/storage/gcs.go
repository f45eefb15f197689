package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCSStore writes artifacts to a Cloud Storage bucket. With MakePublic the
// object ACL grants allUsers read, matching buckets without uniform access.
type GCSStore struct {
	client     *gcs.Client
	bucket     string
	MakePublic bool
}

func NewGCSStore(client *gcs.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, MakePublic: true}
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	obj := s.client.Bucket(s.bucket).Object(cleanKey)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: upload %s: %w", cleanKey, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize %s: %w", cleanKey, err)
	}
	if s.MakePublic {
		if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
			return "", fmt.Errorf("storage: make %s public: %w", cleanKey, err)
		}
	}
	return PublicURL(s.bucket, cleanKey), nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(cleanKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("storage: open %s: %w", cleanKey, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", cleanKey, err)
	}
	return data, nil
}

// PublicURL is the anonymous download URL of a public object.
func PublicURL(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "https://storage.googleapis.com/" + bucket + "/" + strings.Join(parts, "/")
}

var _ ArtifactStore = (*GCSStore)(nil)
