package webhook

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/glasswing-io/tiergate/pkg/logctx"
)

// HandlerFunc processes one normalized event.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Dispatcher routes each event to exactly one registered handler. Unknown
// event types are logged and acknowledged, never rejected: the provider
// retries on non-2xx and a permanently-unknown type would retry forever.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType]HandlerFunc
	log      *zap.SugaredLogger
}

func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType]HandlerFunc), log: log}
}

// Register binds a handler to an event type. Registering the same type
// twice is a wiring bug.
func (d *Dispatcher) Register(t EventType, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.handlers[t]; dup {
		panic(fmt.Sprintf("webhook: duplicate handler for %s", t))
	}
	d.handlers[t] = h
}

// Dispatch runs the handler for the event's type. A missing handler is not
// an error.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *Event) error {
	d.mu.RLock()
	h, ok := d.handlers[evt.Type]
	d.mu.RUnlock()

	if !ok {
		logctx.FromCtx(ctx, d.log).Infow("webhook_event_unhandled", "event_type", evt.Type)
		return nil
	}
	return h(ctx, evt)
}

var Module = fx.Options(
	fx.Provide(NewDispatcher),
	fx.Provide(NewEventLog),
)
