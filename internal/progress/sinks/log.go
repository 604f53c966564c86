package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/progress"
)

// Log writes every progress event to a zap logger. Useful for operators
// tailing the service while a crawl runs.
type Log struct {
	logger *zap.Logger
}

// NewLog builds a Log sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Consume implements progress.Sink.
func (l *Log) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("job_id", evt.JobID.String()),
		zap.String("status", evt.Status),
		zap.Float64("progress", evt.Progress),
		zap.Int("pages_crawled", evt.PagesCrawled),
	}
	switch evt.Kind {
	case progress.KindStatus:
		l.logger.Info("job status", fields...)
	default:
		l.logger.Debug(evt.Message, fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (l *Log) Close(context.Context) error {
	return nil
}
