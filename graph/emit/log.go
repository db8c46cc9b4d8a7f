package emit

import (
	"go.uber.org/zap"
)

// LogEmitter writes every event as a structured zap log entry.
//
// Events carrying Meta["error"] are logged at Warn; everything else at
// Debug, except thread_end and interrupt which are Info.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger discards events.
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	emitter := emit.NewLogEmitter(logger)
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger.With(zap.String("component", "engine"))}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields,
		zap.String("thread_id", event.ThreadID),
		zap.Int("step", event.Step),
	)
	if event.Stage != "" {
		fields = append(fields, zap.String("stage", event.Stage))
	}
	for k, v := range event.Meta {
		fields = append(fields, zap.Any(k, v))
	}

	switch {
	case event.Meta["error"] != nil:
		l.logger.Warn(event.Msg, fields...)
	case event.Msg == MsgThreadEnd || event.Msg == MsgInterrupt:
		l.logger.Info(event.Msg, fields...)
	default:
		l.logger.Debug(event.Msg, fields...)
	}
}
