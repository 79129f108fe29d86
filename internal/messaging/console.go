package messaging

import (
	"context"
	"fmt"
	"io"
	"sync"

	"authbot/internal/address"
	"authbot/internal/metrics"
)

const transportConsole = "console"

// ConsoleMessenger writes replies to a terminal. Replies for any
// conversation other than the local one are prefixed with its address.
type ConsoleMessenger struct {
	mu    sync.Mutex
	out   io.Writer
	local address.Address
}

// NewConsoleMessenger creates a messenger writing to out. local is the
// conversation typed into the terminal.
func NewConsoleMessenger(out io.Writer, local address.Address) *ConsoleMessenger {
	return &ConsoleMessenger{out: out, local: local}
}

// Deliver implements Messenger.
func (c *ConsoleMessenger) Deliver(_ context.Context, addr address.Address, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if addr == c.local {
		_, err = fmt.Fprintf(c.out, "bot> %s\n", text)
	} else {
		_, err = fmt.Fprintf(c.out, "bot [%s]> %s\n", addr, text)
	}
	metrics.Deliveries.WithLabelValues(transportConsole, metrics.Result(err)).Inc()
	return err
}
