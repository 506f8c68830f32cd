package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gmdaily/pkg/ui"
)

// Console prints messages to a terminal
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole writes to w
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Send implements Sender
func (c *Console) Send(_ context.Context, title, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "\n%s\n%s\n", ui.Cyan(title), message)
	return err
}
