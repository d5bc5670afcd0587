package controlinterface

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/seantiz/anvil/internal/model"
)

// MaxMessageSize is the largest frame payload accepted from a workload (4 MiB).
const MaxMessageSize = 4 << 20

var (
	// ErrMessageTooLarge is returned when a frame announces a payload above
	// MaxMessageSize. The payload has been skipped.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrMalformedMessage is returned when a frame payload is not valid JSON.
	ErrMalformedMessage = errors.New("malformed message")
)

// Request types a workload may send.
const (
	RequestCompleteState = "complete_state"
	RequestUpdateState   = "update_state"
)

// Request is a frame written by a workload to its output FIFO.
type Request struct {
	ID    string              `json:"id"`
	Type  string              `json:"type"`
	State *model.DesiredState `json:"state,omitempty"`
}

// Response is the frame the agent writes back to the input FIFO.
type Response struct {
	ID     string                `json:"id"`
	Error  string                `json:"error,omitempty"`
	States []model.WorkloadState `json:"states,omitempty"`
}

// Reader is what ReadMessage needs to decode the varint prefix.
type Reader interface {
	io.Reader
	io.ByteReader
}

// WriteMessage writes v as a frame: an unsigned varint payload length followed
// by the JSON payload. The frame is written with a single Write call.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("write message: %w: %d bytes", ErrMessageTooLarge, len(data))
	}

	frame := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+len(data)), uint64(len(data)))
	frame = append(frame, data...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one frame from r and decodes it into v.
func ReadMessage(r Reader, v any) error {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}

	if length > MaxMessageSize {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return fmt.Errorf("skip oversized payload: %w", err)
		}
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLarge, length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return nil
}
