package eventlog

import (
	"context"
	"time"

	"github.com/plantio/irrigation-engine/internal/metrics"
	"github.com/plantio/irrigation-engine/internal/model/messages"
)

// Observer receives a copy of every event written through the Log, after the
// store accepted it. Used to fan out to the Influx sink.
type Observer func(messages.Event)

// Log couples the injected Store with metrics and optional observers. The
// dispatcher and zone controller write through it; the UI layer reads the
// store directly.
type Log struct {
	store     Store
	observers []Observer
}

func NewLog(store Store, observers ...Observer) *Log {
	return &Log{store: store, observers: observers}
}

func (l *Log) Append(ctx context.Context, evt messages.Event) error {
	if err := l.store.Append(ctx, evt); err != nil {
		return err
	}
	metrics.EventsTotal.WithLabelValues(string(evt.Status)).Inc()
	l.fanOut(evt)
	return nil
}

func (l *Log) SetStatus(ctx context.Context, id string, status messages.EventStatus, reason string, at time.Time) error {
	if err := l.store.SetStatus(ctx, id, status, reason, at); err != nil {
		return err
	}
	metrics.EventsTotal.WithLabelValues(string(status)).Inc()
	if evt, err := l.store.Get(ctx, id); err == nil {
		l.fanOut(evt)
	}
	return nil
}

func (l *Log) Get(ctx context.Context, id string) (messages.Event, error) {
	return l.store.Get(ctx, id)
}

func (l *Log) List(ctx context.Context, f Filter) ([]messages.Event, error) {
	return l.store.List(ctx, f)
}

func (l *Log) DeletePending(ctx context.Context, scheduleID string) (int, error) {
	return l.store.DeletePending(ctx, scheduleID)
}

func (l *Log) fanOut(evt messages.Event) {
	for _, obs := range l.observers {
		obs(evt)
	}
}
