package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

var (
	ErrQueueFull       = errors.New("event queue is full")
	ErrPublisherClosed = errors.New("event publisher is closed")
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
)

type AsyncConfig struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}

type pendingEvent struct {
	order *domain.Order
	span  trace.SpanContext
}

// AsyncPublisher hands events to a pool of workers so placing an order never
// waits on the broker. Events still queued at Close are delivered first.
type AsyncPublisher struct {
	next   port.EventPublisher
	cfg    AsyncConfig
	queue  chan pendingEvent
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncPublisher(next port.EventPublisher, cfg AsyncConfig, logger *zap.Logger) *AsyncPublisher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	p := &AsyncPublisher{
		next:   next,
		cfg:    cfg,
		queue:  make(chan pendingEvent, cfg.QueueSize),
		logger: logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workerLoop(id)
		}(i)
	}
	return p
}

// PublishOrderPlaced enqueues the event. It fails fast with ErrQueueFull
// rather than blocking the caller.
func (p *AsyncPublisher) PublishOrderPlaced(ctx context.Context, order *domain.Order) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- pendingEvent{order: order, span: trace.SpanContextFromContext(ctx)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) workerLoop(id int) {
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		if ev.span.IsValid() {
			ctx = trace.ContextWithRemoteSpanContext(ctx, ev.span)
		}

		if err := p.next.PublishOrderPlaced(ctx, ev.order); err != nil {
			p.logger.Error("Failed to deliver event",
				zap.Int("worker", id),
				zap.String("event_type", EventTypeOrderPlaced),
				zap.Int64("order_id", ev.order.ID),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the underlying
// publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.next.Close()
}
