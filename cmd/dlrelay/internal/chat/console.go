package chat

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal"
	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/channels"
)

// consoleChannel prints replies to a terminal instead of sending them.
type consoleChannel struct {
	*channels.BaseChannel
	mu  sync.Mutex
	out io.Writer
}

func newConsoleChannel(out io.Writer) *consoleChannel {
	return &consoleChannel{
		BaseChannel: channels.NewBaseChannel("cli"),
		out:         out,
	}
}

func (c *consoleChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n%s %s\n\n", internal.Logo, msg.Content)
	return err
}

var _ channels.Channel = (*consoleChannel)(nil)
