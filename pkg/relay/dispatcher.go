package relay

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/channels"
)

// Dispatcher sends replies back through the originating channel.
type Dispatcher struct {
	channel channels.Channel
}

func NewDispatcher(channel channels.Channel) *Dispatcher {
	return &Dispatcher{channel: channel}
}

// Dispatch sends text to senderID. Errors, and panics raised by the channel,
// come back wrapped in ErrDispatchFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, senderID, text string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: channel %s panicked: %v", ErrDispatchFailed, d.channel.Name(), p)
		}
	}()

	if sendErr := d.channel.Send(ctx, bus.OutboundMessage{
		Channel: d.channel.Name(),
		ChatID:  senderID,
		Content: text,
	}); sendErr != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, sendErr)
	}
	return nil
}
