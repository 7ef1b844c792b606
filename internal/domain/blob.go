package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver exports old settlement events to cold storage and prunes them
// from the primary store.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
