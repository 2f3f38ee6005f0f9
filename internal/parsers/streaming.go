package parsers

import (
	"context"
	"io"

	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// decodeFunc turns one row into a record or explains why it was rejected
type decodeFunc[T any] func(record []string, pctx *ParseContext) (T, *ParseError)

// stream decodes r row by row and hands valid records to emit in batches of
// at most batchSize. Rejected rows go to the returned stats; the import
// stops once more than maxErrors rows were rejected, unless maxErrors is 0.
func stream[T any](ctx context.Context, bp *BaseParser, r io.Reader, source string, cfg *ImportConfig,
	batchSize int, decode decodeFunc[T], emit func([]T) error) (*ParseStats, error) {
	if batchSize <= 0 {
		batchSize = cfg.BatchSize
	}

	stats := NewParseStats()
	pctx := newParseContext(ctx, source)
	reader := bp.newReader(r)
	if err := bp.readHeaders(reader, pctx); err != nil {
		return stats, err
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "import " + bp.layout.Name,
		Logger:    bp.logger,
	})

	batch := make([]T, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := emit(batch); err != nil {
			return err
		}
		batch = make([]T, 0, batchSize)
		return nil
	}

	for {
		record, err := bp.readRecord(reader, pctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := apperrors.AsReconcilerError(err); ok {
				tracker.CompleteWithError(err)
				return stats, err
			}
			stats.AddError(&ParseError{Line: pctx.LineNumber + 1, Field: "row", Message: "unreadable row", Err: err})
			tracker.Fail()
			if tooManyErrors(stats, cfg) {
				return stats, abortImport(source, pctx.LineNumber, stats, tracker)
			}
			continue
		}

		stats.RecordsParsed++
		item, perr := decode(record, pctx)
		if perr != nil {
			stats.AddError(perr)
			tracker.Fail()
			if tooManyErrors(stats, cfg) {
				return stats, abortImport(source, pctx.LineNumber, stats, tracker)
			}
			continue
		}

		batch = append(batch, item)
		stats.RecordsValid++
		tracker.Increment()
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				tracker.CompleteWithError(err)
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		tracker.CompleteWithError(err)
		return stats, err
	}
	stats.TotalLines = pctx.LineNumber
	tracker.Complete()

	bp.logger.WithFields(logger.Fields{
		"source":  source,
		"layout":  bp.layout.Name,
		"valid":   stats.RecordsValid,
		"errors":  stats.ErrorCount,
		"samples": stats.SampleErrors(3),
	}).Info("Import completed")
	return stats, nil
}

func tooManyErrors(stats *ParseStats, cfg *ImportConfig) bool {
	return cfg.MaxErrors > 0 && stats.ErrorCount > cfg.MaxErrors
}

func abortImport(source string, line int, stats *ParseStats, tracker *logger.ProgressTracker) error {
	err := apperrors.ParseError(apperrors.CodeInvalidData, source, line, "rows", stats.String(), nil).
		WithContext("first_errors", stats.SampleErrors(3)).
		WithSuggestion("Check the layout matches the file, or raise the error limit")
	tracker.CompleteWithError(err)
	stats.TotalLines = line
	return err
}
