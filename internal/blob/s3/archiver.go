package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openarb/arbd/internal/domain"
)

// ExecutionArchiveSource is the narrow read surface the archiver needs from
// the execution store: only records older than the cutoff.
type ExecutionArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error)
}

// ExecutionArchiver implements domain.Archiver by querying aged execution
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// not performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ExecutionArchiver struct {
	writer domain.BlobWriter
	source ExecutionArchiveSource
	logger *slog.Logger
}

// NewExecutionArchiver creates a new ExecutionArchiver.
func NewExecutionArchiver(writer domain.BlobWriter, source ExecutionArchiveSource, logger *slog.Logger) *ExecutionArchiver {
	return &ExecutionArchiver{
		writer: writer,
		source: source,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveExecutions queries all execution records started before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/executions/YYYY-MM.jsonl. It returns the number of archived records.
func (a *ExecutionArchiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.source.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions marshal: %w", err)
	}

	path := archivePath("executions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive executions upload: %w", err)
	}

	count := int64(len(records))
	a.logger.Info("archived execution records",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/executions/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ExecutionArchiver)(nil)
