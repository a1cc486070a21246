package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"bills/internal/core"
	"bills/internal/metrics"
)

// Publisher delivers a mutation event to an interested party. Delivery is
// best effort: the store is already updated when Publish is called.
type Publisher interface {
	Publish(ctx context.Context, event core.BillEvent) error
}

// Sink is a named Publisher, the name is used in logs and metrics.
type Sink struct {
	Name      string
	Publisher Publisher
}

// MultiPublisher fans an event out to every configured sink. A failing
// sink does not prevent delivery to the others.
type MultiPublisher struct {
	sinks []Sink
}

func NewMultiPublisher(sinks ...Sink) *MultiPublisher {
	m := &MultiPublisher{}
	for _, s := range sinks {
		if s.Publisher == nil {
			slog.Warn("Publisher not available, skipping sink", "sink", s.Name)
			continue
		}
		m.sinks = append(m.sinks, s)
	}
	return m
}

func (m *MultiPublisher) Publish(ctx context.Context, event core.BillEvent) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Publisher.Publish(ctx, event)
		metrics.ObservePublish(s.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of active sinks.
func (m *MultiPublisher) Len() int {
	return len(m.sinks)
}

// Close closes every sink that holds resources.
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.Publisher.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
