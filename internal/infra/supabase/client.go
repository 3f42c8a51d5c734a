package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"pdf-text-overlay/internal/domain"

	"github.com/supabase-community/supabase-go"
	storage_go "github.com/supabase-community/storage-go"
)

// ObjectUploader is the part of the storage client the sink needs.
type ObjectUploader interface {
	UploadFile(bucketID string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
}

// StorageSink archives exported documents in a Supabase Storage bucket.
type StorageSink struct {
	uploader ObjectUploader
	bucket   string
	prefix   string
	logger   domain.Logger
}

// NewStorageSink connects to Supabase with the service key from config.
func NewStorageSink(config domain.Config, logger domain.Logger) (*StorageSink, error) {
	supabaseURL := config.GetSupabaseURL()
	supabaseKey := config.GetSupabaseKey()
	bucket := config.GetSupabaseExportBucket()

	if supabaseURL == "" || supabaseKey == "" || bucket == "" {
		return nil, fmt.Errorf("supabase URL, key and export bucket must be provided")
	}

	client, err := supabase.NewClient(supabaseURL, supabaseKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	logger.Info("Supabase export archive enabled", "url", supabaseURL, "bucket", bucket)
	return NewStorageSinkWith(client.Storage, bucket, logger), nil
}

// NewStorageSinkWith builds a sink around an existing uploader.
func NewStorageSinkWith(uploader ObjectUploader, bucket string, logger domain.Logger) *StorageSink {
	return &StorageSink{
		uploader: uploader,
		bucket:   bucket,
		prefix:   "exports",
		logger:   logger,
	}
}

// Save uploads data under exports/<filename>, replacing any object with the
// same name.
func (s *StorageSink) Save(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	objectPath := path.Join(s.prefix, path.Base(filename))
	contentType := "application/pdf"
	upsert := true

	_, err := s.uploader.UploadFile(s.bucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("storage upload %s/%s: %w", s.bucket, objectPath, err)
	}

	s.logger.Info("Export archived", "bucket", s.bucket, "path", objectPath, "bytes", len(data))
	return nil
}
