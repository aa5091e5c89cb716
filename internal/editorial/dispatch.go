package editorial

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/quill/internal/observability"
	"github.com/pitabwire/quill/model"
)

// Dispatcher delivers domain events to interested parties (notification
// fan-out, metrics). Delivery is fire-and-forget: a dispatcher must not
// block and its errors never fail the originating operation.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.Event)
}

// LogDispatcher logs every event at info level.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a dispatcher that logs events.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the event.
func (d *LogDispatcher) Dispatch(_ context.Context, event model.Event) {
	d.logger.Info("editorial event",
		zap.String("type", event.Type),
		zap.String("journal_id", event.JournalID),
		zap.String("submission_id", event.SubmissionID),
		zap.String("assignment_id", event.AssignmentID),
		zap.String("actor_id", event.ActorID),
	)
}

// MetricsDispatcher records domain metrics from dispatched events.
type MetricsDispatcher struct {
	metrics *observability.Metrics
}

// NewMetricsDispatcher creates a dispatcher that feeds Prometheus metrics.
func NewMetricsDispatcher(metrics *observability.Metrics) *MetricsDispatcher {
	return &MetricsDispatcher{metrics: metrics}
}

// Dispatch records metrics for the event.
func (d *MetricsDispatcher) Dispatch(_ context.Context, event model.Event) {
	switch event.Type {
	case model.EventAssignmentCreated:
		if stage, ok := event.Data["stage"].(string); ok {
			d.metrics.RecordAssignmentCreated(stage)
		}
	case model.EventSubmissionAdvanced:
		from, _ := event.Data["from"].(string)
		to, _ := event.Data["to"].(string)
		d.metrics.RecordStageTransition(from, to)
	case model.EventPublished:
		d.metrics.RecordPublication()
	}
}

// MultiDispatcher fans an event out to several dispatchers.
type MultiDispatcher []Dispatcher

// Dispatch delivers the event to each dispatcher in order.
func (m MultiDispatcher) Dispatch(ctx context.Context, event model.Event) {
	for _, d := range m {
		d.Dispatch(ctx, event)
	}
}

// CollectorDispatcher accumulates dispatched events. For testing.
type CollectorDispatcher struct {
	mu     sync.Mutex
	events []model.Event
}

// Dispatch appends the event to the collected list.
func (c *CollectorDispatcher) Dispatch(_ context.Context, event model.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Events returns a copy of the collected events.
func (c *CollectorDispatcher) Events() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}
