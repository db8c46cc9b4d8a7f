package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
)

// TracebackLines bounds the trace stored with an error entry.
const TracebackLines = 5

// Instrumenter writes a NodeRunLog for every stage invocation it wraps.
//
// Instrumentation never changes the outcome of a stage: stage errors and
// panics pass through unchanged, and failures inside instrumentation
// (snapshotting, storage) are logged as warnings and dropped.
type Instrumenter struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewInstrumenter creates an Instrumenter writing to st.
func NewInstrumenter(st Store, logger *zap.Logger) *Instrumenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumenter{
		store:  st,
		logger: logger.With(zap.String("component", "runlog")),
		now:    time.Now,
	}
}

// Instrument returns engine middleware that logs every stage through in.
//
// Example:
//
//	in := runlog.NewInstrumenter(runlog.NewMemoryStore(), logger)
//	engine.Use(runlog.Instrument[State](in))
func Instrument[S any](in *Instrumenter) graph.Middleware[S] {
	return func(stage string, next graph.Node[S]) graph.Node[S] {
		return graph.NodeFunc[S](func(ctx context.Context, state S) graph.NodeResult[S] {
			return invoke(in, ctx, stage, state, next)
		})
	}
}

func invoke[S any](in *Instrumenter, ctx context.Context, stage string, state S, next graph.Node[S]) graph.NodeResult[S] {
	started := in.now()
	input := in.snapshot(state)
	collector := NewCollector()
	ctx = WithCollector(ctx, collector)

	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		if r == nil {
			return
		}
		entry := in.entry(ctx, stage, started, input, collector)
		entry.Status = StatusError
		entry.ErrorType = "panic"
		entry.ErrorMessage = fmt.Sprint(r)
		entry.ErrorTraceback = truncateLines(string(debug.Stack()), TracebackLines)
		in.append(ctx, entry)
		panic(r)
	}()

	res := next.Run(ctx, state)
	finished = true

	entry := in.entry(ctx, stage, started, input, collector)
	switch {
	case res.Err == nil:
		entry.Status = StatusSuccess
		entry.OutputState = in.snapshot(res.Delta)
	case graph.IsInterrupt(res.Err):
		entry.Status = StatusInterrupted
		var ie *graph.InterruptError
		if errors.As(res.Err, &ie) {
			entry.OutputState = in.snapshot(ie.Payload)
		}
	default:
		entry.Status = StatusError
		entry.ErrorType = fmt.Sprintf("%T", res.Err)
		entry.ErrorMessage = res.Err.Error()
		entry.ErrorTraceback = errorTrace(res.Err, TracebackLines)
	}
	in.append(ctx, entry)
	return res
}

func (in *Instrumenter) entry(ctx context.Context, stage string, started time.Time, input json.RawMessage, c *Collector) NodeRunLog {
	ended := in.now()
	entry := NodeRunLog{
		ThreadID:   graph.ThreadID(ctx),
		NodeName:   stage,
		StartedAt:  started.UTC(),
		EndedAt:    ended.UTC(),
		DurationMS: float64(ended.Sub(started).Microseconds()) / 1000,
		TokenUsage: c.Harvest(),
		InputState: input,
	}
	sumUsage(&entry)
	return entry
}

// append stores entry. Failures are logged and swallowed.
func (in *Instrumenter) append(ctx context.Context, entry NodeRunLog) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Warn("run log append panicked",
				zap.String("thread_id", entry.ThreadID),
				zap.String("stage", entry.NodeName),
				zap.Any("panic", r))
		}
	}()
	if in.store == nil {
		return
	}
	if err := in.store.Append(context.WithoutCancel(ctx), entry); err != nil {
		in.logger.Warn("failed to append run log",
			zap.String("thread_id", entry.ThreadID),
			zap.String("stage", entry.NodeName),
			zap.Error(err))
	}
}

// snapshot serializes v for the log. It never fails: an unserializable
// value becomes {"_serialization_error": "..."}.
func (in *Instrumenter) snapshot(v any) (out json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			out = serializationError(fmt.Sprint(r))
		}
	}()
	data, err := json.Marshal(v)
	if err != nil {
		in.logger.Warn("failed to snapshot state", zap.Error(err))
		return serializationError(err.Error())
	}
	return data
}

func serializationError(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"_serialization_error": msg})
	return data
}

// errorTrace renders the wrap chain of err, outermost first, one line per
// level.
func errorTrace(err error, limit int) string {
	var lines []string
	for e := err; e != nil && len(lines) < limit; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return strings.Join(lines, "\n")
}

func truncateLines(s string, limit int) string {
	lines := strings.SplitN(s, "\n", limit+1)
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return strings.Join(lines, "\n")
}
