package reporter

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks. A
// report that fails to render in the requested format is rendered in a
// simpler one, and a report file that cannot be written lands in the temp
// dir instead of being lost.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
	now    func() time.Time
}

// NewSafeReportGenerator creates a safe report generator. A nil config uses
// DefaultReportConfig.
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report", config, err).
			WithSuggestion("Use one of the formats console, json, csv or xlsx")
	}
	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.OrGlobal(log, "reporter"),
		now:             time.Now,
	}, nil
}

// fallbackFormat is what a failed format degrades to. Spreadsheets become
// CSV and the text formats become the console layout.
func fallbackFormat(f OutputFormat) (OutputFormat, bool) {
	switch f {
	case FormatXLSX:
		return FormatCSV, true
	case FormatJSON, FormatCSV:
		return FormatConsole, true
	default:
		return "", false
	}
}

// GenerateReportSafely writes report to writer, falling back to a simpler
// format when the requested one fails
func (srg *SafeReportGenerator) GenerateReportSafely(report *Report, writer io.Writer) error {
	if err := checkInputs(report, writer); err != nil {
		return err
	}
	log := srg.logger.WithFields(logger.Fields{"report": report.Title, "format": srg.config.Format})

	err := srg.GenerateReport(report, writer)
	if err == nil {
		log.Debug("Report rendered")
		return nil
	}

	format, ok := fallbackFormat(srg.config.Format)
	if !ok || isPathError(err) {
		log.WithError(err).Error("Report rendering failed")
		return wrapRenderError(err)
	}
	log.WithError(err).WithField("fallback_format", format).Warn("Rendering failed, using fallback format")

	cfg := *srg.config
	cfg.Format = format
	fallback, ferr := NewReportGenerator(&cfg)
	if ferr != nil {
		return wrapRenderError(err)
	}
	if format == FormatConsole {
		fmt.Fprintf(writer, "NOTE: %s output failed, report shown in fallback format\n", srg.config.Format)
		fmt.Fprintf(writer, "Original error: %v\n\n", err)
	}
	if ferr := fallback.GenerateReport(report, writer); ferr != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "render report",
			fmt.Errorf("%s failed: %v; %s fallback failed: %w", srg.config.Format, err, format, ferr))
	}
	return nil
}

// WriteFile renders report into path and returns the path written. The file
// is replaced atomically, so a failed render never leaves half a report
// behind. Missing directories are created; when path still cannot be
// written the report goes to a timestamped backup in the temp dir.
func (srg *SafeReportGenerator) WriteFile(report *Report, path string) (string, error) {
	if err := checkInputs(report, io.Discard); err != nil {
		return "", err
	}

	err := srg.writeAtomic(report, path)
	if err == nil {
		srg.logger.WithFields(logger.Fields{"file": path, "format": srg.config.Format}).Info("Report written")
		return path, nil
	}
	if !isPathError(err) {
		return "", wrapRenderError(err)
	}

	backup := backupPath(path, srg.now())
	srg.logger.WithError(err).WithFields(logger.Fields{
		"file":   path,
		"backup": backup,
	}).Warn("Cannot write report file, writing a backup")

	if berr := srg.writeAtomic(report, backup); berr != nil {
		return "", errors.FileError(errors.CodeFilePermission, path, err).
			WithSuggestion("Check the output directory is writable")
	}
	fmt.Fprintf(os.Stderr, "Warning: could not write %s, report saved to %s\n", path, backup)
	return backup, nil
}

func (srg *SafeReportGenerator) writeAtomic(report *Report, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	// removes the temp file unless the rename below moved it
	defer os.Remove(tmp.Name())

	if err := srg.GenerateReport(report, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func checkInputs(report *Report, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil).
			WithSuggestion("Provide a report to render")
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	return nil
}

// backupPath names a backup of path in the temp dir, e.g.
// /tmp/batch_backup_20240315T101500.xlsx
func backupPath(path string, at time.Time) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup_%s%s", name, at.Format("20060102T150405"), ext))
}

func isPathError(err error) bool {
	var pathErr *fs.PathError
	return stderrors.As(err, &pathErr)
}

func wrapRenderError(err error) error {
	if rerr, ok := errors.AsReconcilerError(err); ok {
		return rerr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "render report", err).
		WithSuggestion("Check the output destination and report format settings")
}
