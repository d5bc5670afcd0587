// Package controlinterface gives a running workload a bidirectional API
// channel into the agent through a pair of FIFOs.
//
// The workload writes framed Requests to the output FIFO and reads framed
// Responses from the input FIFO. Both live in the directory returned by
// APILocation, which the process backend exports to the workload as
// ANVIL_CONTROL_INTERFACE.
package controlinterface

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/seantiz/anvil/internal/model"
)

// FIFO names inside the control interface directory.
const (
	InputFIFO  = "input"
	OutputFIFO = "output"
)

// Handler answers control interface requests on behalf of a workload.
type Handler interface {
	HandleControlRequest(ctx context.Context, name model.WorkloadName, req Request) Response
}

// PipesChannel is a live control interface backed by two FIFOs and a relay
// goroutine.
type PipesChannel struct {
	name    model.WorkloadName
	dir     string
	handler Handler
	logger  *slog.Logger

	input  *os.File
	output *os.File

	cancel    context.CancelFunc
	abortOnce sync.Once
	done      chan struct{}
}

// New creates the FIFOs under <baseDir>/<name>/<id>/control_interface and
// starts relaying requests to handler. Each channel gets its own directory so
// a replacement never shares FIFOs with the channel it replaces.
func New(baseDir string, name model.WorkloadName, handler Handler, logger *slog.Logger) (*PipesChannel, error) {
	instanceDir := filepath.Join(baseDir, string(name), model.NewID())
	dir := filepath.Join(instanceDir, "control_interface")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create control interface dir: %w", err)
	}

	p := &PipesChannel{
		name:    name,
		dir:     dir,
		handler: handler,
		logger:  logger.With("component", "control_interface", "workload", name),
		done:    make(chan struct{}),
	}

	if err := p.open(); err != nil {
		p.closeFiles()
		os.RemoveAll(instanceDir)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.relay(ctx, instanceDir)

	return p, nil
}

func (p *PipesChannel) open() error {
	for _, fifo := range []string{InputFIFO, OutputFIFO} {
		if err := makeFIFO(filepath.Join(p.dir, fifo)); err != nil {
			return err
		}
	}

	var err error
	if p.input, err = openFIFO(filepath.Join(p.dir, InputFIFO)); err != nil {
		return fmt.Errorf("open input fifo: %w", err)
	}
	if p.output, err = openFIFO(filepath.Join(p.dir, OutputFIFO)); err != nil {
		return fmt.Errorf("open output fifo: %w", err)
	}
	return nil
}

// APILocation returns the directory holding the FIFOs.
func (p *PipesChannel) APILocation() string {
	return p.dir
}

// Abort stops the relay and closes the FIFOs. It returns without waiting for
// the relay to exit; use Done for that. Repeated calls are no-ops.
func (p *PipesChannel) Abort() {
	p.abortOnce.Do(func() {
		p.cancel()
		p.closeFiles()
	})
}

// Done is closed after the relay has exited and the FIFOs are removed.
func (p *PipesChannel) Done() <-chan struct{} {
	return p.done
}

func (p *PipesChannel) closeFiles() {
	if p.input != nil {
		p.input.Close()
	}
	if p.output != nil {
		p.output.Close()
	}
}

func (p *PipesChannel) relay(ctx context.Context, instanceDir string) {
	defer close(p.done)
	defer func() {
		if err := os.RemoveAll(instanceDir); err != nil {
			p.logger.Warn("remove control interface dir", "error", err)
		}
		// Drop the per-workload directory once the last instance is gone.
		os.Remove(filepath.Dir(instanceDir))
	}()

	r := bufio.NewReader(p.output)
	for {
		var req Request
		err := ReadMessage(r, &req)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrMessageTooLarge), errors.Is(err, ErrMalformedMessage):
			p.logger.Warn("dropping control interface request", "error", err)
			continue
		default:
			p.logger.Error("read control interface request", "error", err)
			p.closeFiles()
			return
		}

		resp := p.handler.HandleControlRequest(ctx, p.name, req)
		resp.ID = req.ID
		if err := WriteMessage(p.input, resp); err != nil {
			if ctx.Err() == nil {
				p.logger.Error("write control interface response", "request_id", req.ID, "error", err)
				p.closeFiles()
			}
			return
		}
	}
}
