package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/geoquery/internal/record"
)

// BatchResult counts the outcome of a batch.
type BatchResult struct {
	Inserted int
	Updated  int
	Deleted  int
	Skipped  int
	Failed   int
}

// BatchWriter applies records to a Writer according to their state.
type BatchWriter struct {
	w      Writer
	logger *slog.Logger
}

// NewBatchWriter creates a batch writer. A nil logger uses slog.Default.
func NewBatchWriter(w Writer, logger *slog.Logger) *BatchWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{w: w, logger: logger}
}

// Write dispatches every record: New is inserted, Modified updated, Deleted
// deleted and Persisted skipped.
//
// A *RowError is logged and counted, and the batch continues. Any other
// error, including a record in the Initializing state, stops the batch and
// is returned with the counts so far.
func (b *BatchWriter) Write(ctx context.Context, records []*record.Record) (BatchResult, error) {
	var res BatchResult
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		op, err := b.apply(ctx, r)
		if err == nil {
			switch op {
			case "insert":
				res.Inserted++
			case "update":
				res.Updated++
			case "delete":
				res.Deleted++
			default:
				res.Skipped++
			}
			continue
		}
		if !IsRowError(err) {
			return res, err
		}
		res.Failed++
		b.logger.Error("record write failed",
			"op", op,
			"path", r.Definition().Path,
			"id", r.ID(),
			"error", err,
		)
	}
	return res, nil
}

func (b *BatchWriter) apply(ctx context.Context, r *record.Record) (string, error) {
	switch r.State() {
	case record.New:
		if err := assignIdentifier(r); err != nil {
			return "insert", err
		}
		if err := b.w.Insert(ctx, r); err != nil {
			return "insert", err
		}
		return "insert", r.MarkPersisted()
	case record.Modified:
		if err := b.w.Update(ctx, r); err != nil {
			return "update", err
		}
		return "update", r.MarkPersisted()
	case record.Deleted:
		return "delete", b.w.Delete(ctx, r)
	case record.Persisted:
		return "skip", nil
	default:
		return "", fmt.Errorf("%w: cannot write %s record %s", record.ErrInvalidTransition, r.State(), r.Definition().Path)
	}
}

// assignIdentifier gives a New record with an empty string identifier a
// generated one. Integer identifiers are left to the backend.
func assignIdentifier(r *record.Record) error {
	f, ok := r.Definition().IDFieldDefinition()
	if !ok || f.Type != record.String {
		return nil
	}
	if id, _ := r.ID().(string); id != "" {
		return nil
	}
	return r.Set(f.Name, record.NewIdentifier())
}
