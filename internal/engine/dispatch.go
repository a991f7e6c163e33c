package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

// Handler is satisfied by *Engine.
type Handler interface {
	Handle(ctx context.Context, ev Event) ([]Effect, error)
}

// Output delivers the effects of one event, in order.
type Output func(ctx context.Context, effects []Effect)

// Dispatcher applies events of one user in arrival order while different
// users run in parallel. Each key with pending events owns one worker
// goroutine, which exits once its queue drains.
type Dispatcher struct {
	handler Handler
	output  Output

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string][]Event
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(handler Handler, output Output) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		output:  output,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[string][]Event),
	}
}

// eventKey groups events that must not interleave. Deposits are keyed by
// address since their owner is unknown until resolution.
func eventKey(ev Event) string {
	switch ev := ev.(type) {
	case TextMessage:
		return "user:" + ev.UserId
	case ButtonPress:
		return "user:" + ev.UserId
	case DepositNotification:
		return "deposit:" + ev.Address
	default:
		return ""
	}
}

// Submit enqueues ev behind earlier events with the same key.
func (d *Dispatcher) Submit(ev Event) error {
	key := eventKey(ev)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	pending, running := d.queues[key]
	d.queues[key] = append(pending, ev)
	if !running {
		d.wg.Add(1)
		go d.drain(key)
	}
	return nil
}

func (d *Dispatcher) drain(key string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		ev := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		d.process(ev)
	}
}

func (d *Dispatcher) process(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Event handler panicked", zap.Any("panic", r), zap.String("key", eventKey(ev)))
		}
	}()

	effects, err := d.handler.Handle(d.ctx, ev)
	if err != nil {
		zap.L().Debug("Event handled with error", zap.String("key", eventKey(ev)), zap.Error(err))
	}
	if len(effects) > 0 && d.output != nil {
		d.output(d.ctx, effects)
	}
}

// Close stops accepting events and waits for queued ones to finish. If ctx
// expires first the in-flight handlers are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
