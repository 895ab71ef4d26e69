package sequencer

import (
	"context"
	"fmt"
	"log/slog"
)

// Sink receives human-readable progress lines as a run executes. A UI can
// relay these to its display loop; the original tooling fed an equivalent
// stream to its front end.
type Sink func(line string)

// Reporter emits the run's progress stream: one line per significant
// event, mirrored to structured logging.
type Reporter struct {
	log  *slog.Logger
	sink Sink
}

// NewReporter creates a reporter. A nil logger falls back to
// slog.Default(); a nil sink drops the line stream.
func NewReporter(log *slog.Logger, sink Sink) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{log: log, sink: sink}
}

func (r *Reporter) emit(level slog.Level, format string, args ...any) {
	if r == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	if r.sink != nil {
		r.sink(line)
	}
	r.log.Log(context.Background(), level, line)
}

// Statusf reports normal progress.
func (r *Reporter) Statusf(format string, args ...any) {
	r.emit(slog.LevelInfo, format, args...)
}

// Warnf reports a skipped actuator or transaction.
func (r *Reporter) Warnf(format string, args ...any) {
	r.emit(slog.LevelWarn, format, args...)
}

// Errorf reports a failure that aborts a step or the run.
func (r *Reporter) Errorf(format string, args ...any) {
	r.emit(slog.LevelError, format, args...)
}
