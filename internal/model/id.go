package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string. The agent uses it to tell apart
// successive execution instances of the same workload and to correlate
// control-interface requests.
func NewID() string {
	return ulid.Make().String()
}
