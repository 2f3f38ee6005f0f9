package logger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressTracker logs periodic progress of a bulk operation such as a
// statement import or a batch of invoices. It is safe for concurrent use;
// counting is lock free and only the periodic log line takes the mutex.
type ProgressTracker struct {
	logger    Logger
	operation string
	total     int64
	interval  time.Duration
	start     time.Time

	done   atomic.Int64
	failed atomic.Int64

	mu      sync.Mutex
	lastLog time.Time
	now     func() time.Time
}

// ProgressConfig configures progress tracking. Total may be zero when the
// size of the input is unknown, as with streamed files.
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a tracker and logs the start of the operation
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.LogInterval <= 0 {
		config.LogInterval = 5 * time.Second
	}
	p := &ProgressTracker{
		logger:    OrGlobal(config.Logger, "progress").WithField("operation", config.Operation),
		operation: config.Operation,
		total:     config.Total,
		interval:  config.LogInterval,
		now:       time.Now,
	}
	p.start = p.now()
	p.lastLog = p.start

	p.logger.WithField("total", config.Total).Debug("Starting operation")
	return p
}

// Increment records one processed item
func (p *ProgressTracker) Increment() {
	p.done.Add(1)
	p.maybeLog()
}

// Fail records one item that could not be processed
func (p *ProgressTracker) Fail() {
	p.done.Add(1)
	p.failed.Add(1)
	p.maybeLog()
}

func (p *ProgressTracker) maybeLog() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastLog) < p.interval {
		return
	}
	p.lastLog = now
	p.logger.WithFields(p.Stats().fields()).Info("Progress update")
}

// Complete logs the final statistics of the operation
func (p *ProgressTracker) Complete() {
	p.logger.WithFields(p.Stats().fields()).Info("Operation completed")
}

// CompleteWithError logs the final statistics together with err
func (p *ProgressTracker) CompleteWithError(err error) {
	p.logger.WithError(err).WithFields(p.Stats().fields()).Error("Operation completed with error")
}

// Stats returns a snapshot of the progress counters
func (p *ProgressTracker) Stats() ProgressStats {
	return ProgressStats{
		Operation: p.operation,
		Total:     p.total,
		Current:   p.done.Load(),
		Failed:    p.failed.Load(),
		Duration:  p.now().Sub(p.start),
	}
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation string        `json:"operation"`
	Total     int64         `json:"total"`
	Current   int64         `json:"current"`
	Failed    int64         `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Rate is items per second, zero before any time has passed
func (ps ProgressStats) Rate() float64 {
	if ps.Duration <= 0 {
		return 0
	}
	return float64(ps.Current) / ps.Duration.Seconds()
}

// Remaining estimates the time left from the current rate. It is zero when
// the total is unknown or nothing has been processed yet.
func (ps ProgressStats) Remaining() time.Duration {
	rate := ps.Rate()
	if ps.Total <= 0 || rate == 0 || ps.Current >= ps.Total {
		return 0
	}
	return time.Duration(float64(ps.Total-ps.Current) / rate * float64(time.Second))
}

func (ps ProgressStats) fields() Fields {
	f := Fields{
		"processed": ps.Current,
		"failed":    ps.Failed,
		"duration":  ps.Duration.Round(time.Millisecond).String(),
		"per_sec":   fmt.Sprintf("%.1f", ps.Rate()),
	}
	if ps.Total > 0 {
		f["total"] = ps.Total
		f["percentage"] = fmt.Sprintf("%.1f%%", float64(ps.Current)/float64(ps.Total)*100)
		f["eta"] = ps.Remaining().Round(time.Second).String()
	}
	return f
}

func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d processed, %d failed, elapsed %v",
			ps.Operation, ps.Current, ps.Total, ps.Failed, ps.Duration)
	}
	return fmt.Sprintf("%s: %d processed, %d failed, elapsed %v",
		ps.Operation, ps.Current, ps.Failed, ps.Duration)
}
