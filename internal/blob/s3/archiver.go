package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
)

// multipartThreshold is the serialized size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver. It drains old settlement events
// from the primary store into monthly JSONL objects on S3, then deletes the
// archived rows. The ledger in Postgres stays bounded while the full audit
// trail remains queryable from the bucket.
//
// Deletion happens only after the upload succeeded. A crash between upload
// and delete re-archives the same rows on the next run, which overwrites the
// same object key with a superset; the archive is idempotent, never lossy.
type ArchiveImpl struct {
	writer domain.BlobWriter
	events domain.EventStore
	tx     domain.TxManager
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, events domain.EventStore, tx domain.TxManager, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		events: events,
		tx:     tx,
		logger: logger.With("component", "archiver"),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveEvents uploads all settlement events recorded strictly before the
// cutoff to archive/events/YYYY-MM.jsonl and removes them from the store.
// It returns the number of archived events.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))

	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		deleted, err := a.events.DeleteBefore(ctx, before)
		if err != nil {
			return err
		}
		if deleted != count {
			a.logger.WarnContext(ctx, "archived and deleted counts differ",
				"archived", count,
				"deleted", deleted)
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("s3blob: archive events delete: %w", err)
	}

	a.logger.InfoContext(ctx, "events archived",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339))
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/events/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice of records to newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
