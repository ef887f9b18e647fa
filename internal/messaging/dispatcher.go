package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// Fanout pushes an event to every session subscribed to topic.
type Fanout interface {
	Publish(ctx context.Context, topic string, event models.ChatEvent) error
}

// EventPublisher forwards domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Envelope is one unit of work for the dispatcher. RoutingKey, when set,
// also sends the event to the broker.
type Envelope struct {
	Topic      string
	Event      models.ChatEvent
	RoutingKey string
}

// Emitter accepts envelopes without blocking.
type Emitter interface {
	Emit(env Envelope) bool
}

const deliveryTimeout = 2 * time.Second

// Dispatcher decouples the write path from realtime delivery. The service
// only enqueues; a single goroutine drains the queue into the fanout.
type Dispatcher struct {
	queue     chan Envelope
	done      chan struct{}
	fanout    Fanout
	publisher EventPublisher
	logger    *zap.Logger
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher builds a dispatcher with a queue of the given size.
// publisher may be nil.
func NewDispatcher(fanout Fanout, publisher EventPublisher, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:     make(chan Envelope, size),
		done:      make(chan struct{}),
		fanout:    fanout,
		publisher: publisher,
		logger:    logger,
	}
}

// Emit enqueues env. It returns false if the queue is full or the
// dispatcher is stopped; the event is then dropped.
func (d *Dispatcher) Emit(env Envelope) bool {
	select {
	case <-d.done:
		observability.IncEventDropped()
		return false
	default:
	}
	select {
	case d.queue <- env:
		return true
	default:
		observability.IncEventDropped()
		d.logger.Warn("event queue full, dropping event",
			zap.String("topic", env.Topic), zap.String("type", env.Event.Type))
		return false
	}
}

// Start runs the delivery loop until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run(ctx)
	})
}

// Stop ends the delivery loop after draining what is already queued.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case env := <-d.queue:
			d.deliver(ctx, env)
		case <-ctx.Done():
			return
		case <-d.done:
			for {
				select {
				case env := <-d.queue:
					d.deliver(ctx, env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := d.fanout.Publish(ctx, env.Topic, env.Event); err != nil {
		d.logger.Warn("fanout publish failed",
			zap.String("topic", env.Topic), zap.String("type", env.Event.Type), zap.Error(err))
	}
	if env.RoutingKey != "" && d.publisher != nil {
		if err := d.publisher.Publish(ctx, env.RoutingKey, env.Event); err != nil {
			observability.IncAMQPPublishError()
			d.logger.Warn("domain event publish failed",
				zap.String("routing_key", env.RoutingKey), zap.Error(err))
		}
	}
}
