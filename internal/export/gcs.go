package export

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSWriter uploads rasters to a Google Cloud Storage bucket under an
// optional key prefix
type GCSWriter struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSWriter creates a writer for gs://<bucket>/<prefix>. Credentials
// resolve from GOOGLE_APPLICATION_CREDENTIALS_JSON /
// GOOGLE_APPLICATION_CREDENTIALS, falling back to application default
// credentials.
func NewGCSWriter(ctx context.Context, bucket, prefix string) (*GCSWriter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	opts := clientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSWriter{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// WriteRaster uploads the raster and returns its gs:// URL
func (w *GCSWriter) WriteRaster(ctx context.Context, name string, data []byte) (string, error) {
	key := name
	if w.prefix != "" {
		key = w.prefix + "/" + name
	}
	obj := w.client.Bucket(w.bucket).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "image/tiff"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to upload raster: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", w.bucket, key), nil
}

// Close releases the underlying storage client
func (w *GCSWriter) Close() error {
	return w.client.Close()
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
