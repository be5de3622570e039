package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/acbikash13/NepalPermit/config"
)

// ObjectStore stores permit documents in named buckets.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	UploadFile(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	GetFile(ctx context.Context, bucket, objectName string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, objectName string) error
	PublicURL(bucket, objectName string) string
}

// NewObjectStore builds the driver selected by cfg.Driver.
func NewObjectStore(ctx context.Context, cfg *config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case config.DriverMinio, "":
		return NewMinioService(cfg)
	case config.DriverS3:
		return NewS3Service(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// bucketSet remembers buckets already known to exist so uploads only check once.
type bucketSet struct {
	mu    sync.Mutex
	ready map[string]bool
}

func (b *bucketSet) ensure(ctx context.Context, bucket string, create func(context.Context, string) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready[bucket] {
		return nil
	}
	if err := create(ctx, bucket); err != nil {
		return err
	}
	if b.ready == nil {
		b.ready = make(map[string]bool)
	}
	b.ready[bucket] = true
	return nil
}

// publicURL joins base, bucket and object name, escaping each path segment of the name.
func publicURL(base, bucket, objectName string) string {
	segments := strings.Split(objectName, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), url.PathEscape(bucket), strings.Join(segments, "/"))
}
