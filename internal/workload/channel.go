package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelClosed is returned by Send once the receiving side has gone away.
var ErrChannelClosed = errors.New("command channel closed")

type channel struct {
	cmds   chan Command
	done   chan struct{}
	once   sync.Once
	reason string
}

// Sender is the sending half of a bounded command channel.
type Sender struct {
	ch *channel
}

// Receiver is the receiving half of a bounded command channel.
type Receiver struct {
	ch *channel
}

// NewChannel creates a command channel that holds up to capacity pending
// commands. A capacity below one is raised to one.
func NewChannel(capacity int) (*Sender, *Receiver) {
	capacity = max(capacity, 1)
	ch := &channel{
		cmds: make(chan Command, capacity),
		done: make(chan struct{}),
	}
	return &Sender{ch: ch}, &Receiver{ch: ch}
}

// Send delivers cmd, waiting while the channel is full. It fails with
// ErrChannelClosed as soon as the receiver is closed, and with the context
// error if ctx ends first. A command is either accepted whole or not at all.
func (s *Sender) Send(ctx context.Context, cmd Command) error {
	select {
	case <-s.ch.done:
		return s.ch.closedErr()
	default:
	}

	select {
	case s.ch.cmds <- cmd:
		return nil
	case <-s.ch.done:
		return s.ch.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commands returns the stream of accepted commands.
func (r *Receiver) Commands() <-chan Command {
	return r.ch.cmds
}

// Close marks the receiver as gone. Pending and future sends fail with
// ErrChannelClosed carrying reason. Only the first call has any effect.
func (r *Receiver) Close(reason string) {
	r.ch.once.Do(func() {
		r.ch.reason = reason
		close(r.ch.done)
	})
}

// Done is closed once Close has been called.
func (r *Receiver) Done() <-chan struct{} {
	return r.ch.done
}

func (c *channel) closedErr() error {
	if c.reason == "" {
		return ErrChannelClosed
	}
	return fmt.Errorf("%w: %s", ErrChannelClosed, c.reason)
}
