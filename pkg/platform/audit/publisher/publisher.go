package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "contactshare/pkg/domain"
	audit "contactshare/pkg/platform/audit"
)

// Publisher fans audit events into a Store, either synchronously or through
// a buffered channel drained by a background goroutine. A full buffer drops
// the event rather than stalling the emitting operation.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("audit append failed", "action", event.Action, "error", err)
		}
	}
}

// Emit records an event. In async mode a full buffer drops the event and
// logs; audit emission never fails the business operation.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if p.buffer == nil {
		if err := p.store.Append(ctx, event); err != nil {
			if p.logger != nil {
				p.logger.Error("audit append failed", "action", event.Action, "error", err)
			}
			return err
		}
		return nil
	}

	select {
	case p.buffer <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		}
	}
	return nil
}

// List reads back a person's trail from the underlying store.
func (p *Publisher) List(ctx context.Context, personID id.PersonID) ([]audit.Event, error) {
	return p.store.ListByPerson(ctx, personID)
}

// Close drains any buffered events before returning.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}
