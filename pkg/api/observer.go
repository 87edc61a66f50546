package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from a store for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay appends.
type Observer interface {
	// OnAppend is called after an event and its projection update have
	// committed.
	OnAppend(ctx context.Context, ev Event, duration time.Duration)

	// OnAppendFailed is called when an append rolls back, for any reason.
	OnAppendFailed(ctx context.Context, req AppendRequest, err error)

	// OnRebuild is called after a projection rebuild finishes, for both
	// successes and failures (err != nil). replayed is the number of
	// events folded.
	OnRebuild(ctx context.Context, workspaceID string, replayed int, err error, duration time.Duration)

	// OnMigrate is called once per open after migrations have run.
	// from == to means the database was already current.
	OnMigrate(ctx context.Context, from, to int)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnAppend(ctx context.Context, ev Event, d time.Duration)             {}
func (NoopObserver) OnAppendFailed(ctx context.Context, req AppendRequest, err error)    {}
func (NoopObserver) OnRebuild(ctx context.Context, ws string, n int, err error, d time.Duration) {
}
func (NoopObserver) OnMigrate(ctx context.Context, from, to int) {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnAppend(ctx context.Context, ev Event, d time.Duration) {
	for _, o := range c.observers {
		o.OnAppend(ctx, ev, d)
	}
}

func (c *CompositeObserver) OnAppendFailed(ctx context.Context, req AppendRequest, err error) {
	for _, o := range c.observers {
		o.OnAppendFailed(ctx, req, err)
	}
}

func (c *CompositeObserver) OnRebuild(ctx context.Context, ws string, n int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnRebuild(ctx, ws, n, err, d)
	}
}

func (c *CompositeObserver) OnMigrate(ctx context.Context, from, to int) {
	for _, o := range c.observers {
		o.OnMigrate(ctx, from, to)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs store lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnAppend(ctx context.Context, ev Event, d time.Duration) {
	o.Logger.DebugContext(ctx, "event_appended",
		slog.String("workspace_id", ev.WorkspaceID),
		slog.Int64("seq", ev.Seq),
		slog.String("entity_type", ev.EntityType),
		slog.String("entity_id", ev.EntityID),
		slog.String("event_type", string(ev.Type)),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnAppendFailed(ctx context.Context, req AppendRequest, err error) {
	o.Logger.ErrorContext(ctx, "event_append_failed",
		slog.String("workspace_id", req.WorkspaceID),
		slog.String("entity_type", req.EntityType),
		slog.String("entity_id", req.EntityID),
		slog.String("event_type", string(req.Type)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRebuild(ctx context.Context, ws string, n int, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "projection_rebuilt",
		slog.String("workspace_id", ws),
		slog.Int("events_replayed", n),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnMigrate(ctx context.Context, from, to int) {
	if from == to {
		return
	}
	o.Logger.InfoContext(ctx, "schema_migrated",
		slog.Int("from_version", from),
		slog.Int("to_version", to),
	)
}

// BasicMetrics collects simple counters and aggregate append durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	appends             atomic.Int64
	appendFailures      atomic.Int64
	rebuilds            atomic.Int64
	eventsReplayed      atomic.Int64
	totalAppendDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Appends        int64
	AppendFailures int64
	Rebuilds       int64
	EventsReplayed int64

	AvgAppendDuration time.Duration
}

func (m *BasicMetrics) OnAppend(ctx context.Context, ev Event, d time.Duration) {
	m.appends.Add(1)
	m.totalAppendDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnAppendFailed(ctx context.Context, req AppendRequest, err error) {
	m.appendFailures.Add(1)
}

func (m *BasicMetrics) OnRebuild(ctx context.Context, ws string, n int, err error, d time.Duration) {
	// Failed rebuilds roll back and fold nothing.
	if err == nil {
		m.rebuilds.Add(1)
		m.eventsReplayed.Add(int64(n))
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	appends := m.appends.Load()
	totalNs := m.totalAppendDuration.Load()

	var avg time.Duration
	if appends > 0 {
		avg = time.Duration(totalNs / appends)
	}

	return BasicMetricsSnapshot{
		Appends:           appends,
		AppendFailures:    m.appendFailures.Load(),
		Rebuilds:          m.rebuilds.Load(),
		EventsReplayed:    m.eventsReplayed.Load(),
		AvgAppendDuration: avg,
	}
}
