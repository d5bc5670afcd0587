//go:build linux || darwin

package controlinterface

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/model"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []Request
}

func (h *recordingHandler) HandleControlRequest(_ context.Context, name model.WorkloadName, req Request) Response {
	h.mu.Lock()
	h.seen = append(h.seen, req)
	h.mu.Unlock()
	return Response{States: []model.WorkloadState{{Name: name, State: model.StateRunning}}}
}

func newTestPipes(t *testing.T) (*PipesChannel, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p, err := New(t.TempDir(), "app", h, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		p.Abort()
		<-p.Done()
	})
	return p, h
}

// workloadSide opens the FIFOs the way a workload would.
func workloadSide(t *testing.T, p *PipesChannel) (*os.File, *bufio.Reader) {
	t.Helper()
	out, err := os.OpenFile(filepath.Join(p.APILocation(), OutputFIFO), os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	t.Cleanup(func() { out.Close() })

	in, err := os.OpenFile(filepath.Join(p.APILocation(), InputFIFO), os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("open input: %v", err)
	}
	t.Cleanup(func() { in.Close() })

	return out, bufio.NewReader(in)
}

func readResponse(t *testing.T, r *bufio.Reader) Response {
	t.Helper()
	type result struct {
		resp Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var resp Response
		err := ReadMessage(r, &resp)
		ch <- result{resp, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("ReadMessage: %v", res.err)
		}
		return res.resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return Response{}
	}
}

func TestNewCreatesFIFOs(t *testing.T) {
	p, _ := newTestPipes(t)

	if !strings.HasSuffix(p.APILocation(), "control_interface") {
		t.Errorf("APILocation = %q, want control_interface suffix", p.APILocation())
	}
	for _, name := range []string{InputFIFO, OutputFIFO} {
		info, err := os.Stat(filepath.Join(p.APILocation(), name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.Mode()&os.ModeNamedPipe == 0 {
			t.Errorf("%s mode = %v, want named pipe", name, info.Mode())
		}
	}
}

func TestRelayAnswersRequest(t *testing.T) {
	p, h := newTestPipes(t)
	out, in := workloadSide(t, p)

	if err := WriteMessage(out, Request{ID: "req-1", Type: RequestCompleteState}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	resp := readResponse(t, in)
	if resp.ID != "req-1" {
		t.Errorf("ID = %q, want req-1", resp.ID)
	}
	if len(resp.States) != 1 || resp.States[0].Name != "app" {
		t.Errorf("States = %+v", resp.States)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seen) != 1 || h.seen[0].Type != RequestCompleteState {
		t.Errorf("handler saw %+v", h.seen)
	}
}

func TestRelaySkipsMalformedRequest(t *testing.T) {
	p, _ := newTestPipes(t)
	out, in := workloadSide(t, p)

	bad := []byte("{oops")
	frame := append(binary.AppendUvarint(nil, uint64(len(bad))), bad...)
	if _, err := out.Write(frame); err != nil {
		t.Fatalf("write bad frame: %v", err)
	}
	if err := WriteMessage(out, Request{ID: "req-2", Type: RequestCompleteState}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	if resp := readResponse(t, in); resp.ID != "req-2" {
		t.Errorf("ID = %q, want req-2", resp.ID)
	}
}

func TestAbortStopsRelayAndRemovesDir(t *testing.T) {
	p, _ := newTestPipes(t)
	dir := p.APILocation()

	p.Abort()
	p.Abort()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not exit after Abort")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("stat %s after abort: %v, want not exist", dir, err)
	}
}

func TestReplacementGetsOwnDirectory(t *testing.T) {
	base := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := &recordingHandler{}

	first, err := New(base, "app", h, logger)
	if err != nil {
		t.Fatalf("New first: %v", err)
	}
	second, err := New(base, "app", h, logger)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	t.Cleanup(func() {
		second.Abort()
		<-second.Done()
	})

	if first.APILocation() == second.APILocation() {
		t.Fatal("replacement shares the directory of the original")
	}

	first.Abort()
	<-first.Done()

	if _, err := os.Stat(filepath.Join(second.APILocation(), InputFIFO)); err != nil {
		t.Errorf("replacement FIFO gone after original aborted: %v", err)
	}
}
