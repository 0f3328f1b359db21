// Package event defines the closed set of streaming events the engine
// emits for consumption by a CLI or daemon front end.
package event

import (
	"log/slog"
	"path/filepath"
)

// Event is the sealed interface implemented only by the variants in
// this package.
type Event interface {
	isEvent()
}

// SlideChunk announces one slide becoming available on disk, or a
// placeholder when its frame could not be extracted.
type SlideChunk struct {
	Index        int
	Total        int
	Timestamp    float64
	ImagePath    string
	ImageVersion int
	Placeholder  bool
}

// TimelineReady fires once timestamp selection is final, before any
// frame exists on disk.
type TimelineReady struct {
	SourceID   string
	Timestamps []float64
}

// Status is a human-readable status line with optional progress.
// Percent is in [0,100]; a negative value means indeterminate.
type Status struct {
	Stage   string
	Message string
	Percent float64
}

// Log carries a log line for front ends that surface engine internals.
type Log struct {
	Level   slog.Level
	Message string
}

func (SlideChunk) isEvent()    {}
func (TimelineReady) isEvent() {}
func (Status) isEvent()        {}
func (Log) isEvent()           {}

// Observer receives engine events. Implementations must return quickly;
// events are published from the pipeline's hot path.
type Observer interface {
	Publish(e Event)
}

// NopObserver discards all events. It stands in when no listener is
// attached.
type NopObserver struct{}

// Publish implements Observer.
func (NopObserver) Publish(Event) {}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

// Publish implements Observer.
func (f ObserverFunc) Publish(e Event) { f(e) }

// LogObserver renders events through a structured logger. It is the
// console view the CLI attaches to a run, keeping stdout free for the
// final result.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns an observer backed by logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// Publish implements Observer. Log events are dropped here: the engine
// already writes them to its own logger, which shares a sink with the
// CLI's.
func (o *LogObserver) Publish(e Event) {
	switch ev := e.(type) {
	case Status:
		attrs := []any{slog.String("stage", ev.Stage)}
		if ev.Percent >= 0 {
			attrs = append(attrs, slog.Int("percent", int(ev.Percent+0.5)))
		}
		o.logger.Info(ev.Message, attrs...)
	case TimelineReady:
		o.logger.Info("timeline ready",
			slog.String("source", ev.SourceID),
			slog.Int("slides", len(ev.Timestamps)))
	case SlideChunk:
		attrs := []any{
			slog.Int("slide", ev.Index),
			slog.Int("of", ev.Total),
			slog.Float64("timestamp", ev.Timestamp),
		}
		switch {
		case ev.Placeholder:
			o.logger.Warn("slide frame missing", attrs...)
		case ev.ImageVersion > 0:
			o.logger.Info("slide refined",
				append(attrs, slog.String("image", filepath.Base(ev.ImagePath)))...)
		default:
			o.logger.Info("slide ready",
				append(attrs, slog.String("image", filepath.Base(ev.ImagePath)))...)
		}
	}
}

// Verify interface implementations at compile time.
var (
	_ Observer = NopObserver{}
	_ Observer = ObserverFunc(nil)
	_ Observer = (*LogObserver)(nil)
)
