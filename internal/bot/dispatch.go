package bot

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/riftlands/engine/internal/chat"
)

// eventTimeout bounds one event's handling end to end, including the
// narration backend call a resolve may trigger.
const eventTimeout = 2 * time.Minute

// Events carries the platform's inbound event streams. Nil channels are
// valid and simply never fire.
type Events struct {
	Commands <-chan chat.CommandInvocation
	Pins     <-chan chat.PinChange
	Messages <-chan chat.Message
}

// Dispatcher fans incoming events out to the handler, one goroutine per
// event. The handler's collaborators serialize shared state internally, so
// concurrent events are safe; ordering between events is not guaranteed.
type Dispatcher struct {
	handler *Handler
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for the handler.
func NewDispatcher(handler *Handler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

// Run consumes events until the context is canceled, then waits for
// in-flight handlers to finish.
func (d *Dispatcher) Run(ctx context.Context, events Events) {
	defer d.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case inv, ok := <-events.Commands:
			if !ok {
				return
			}
			d.spawn(ctx, "command "+inv.Name, func(ctx context.Context) error {
				return d.handler.HandleCommand(ctx, inv)
			})
		case change, ok := <-events.Pins:
			if !ok {
				return
			}
			d.spawn(ctx, "pin change "+change.ChannelName, func(ctx context.Context) error {
				return d.handler.HandlePinChange(ctx, change)
			})
		case msg, ok := <-events.Messages:
			if !ok {
				return
			}
			d.spawn(ctx, "message", func(ctx context.Context) error {
				return d.handler.HandleMessage(ctx, msg)
			})
		}
	}
}

func (d *Dispatcher) spawn(ctx context.Context, label string, handle func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		eventCtx, cancel := context.WithTimeout(ctx, eventTimeout)
		defer cancel()

		if err := handle(eventCtx); err != nil {
			log.Printf("bot: %s: %v", label, err)
		}
	}()
}
