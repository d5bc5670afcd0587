//go:build !linux && !darwin

package controlinterface

import (
	"errors"
	"os"
)

var errFIFOUnsupported = errors.New("control interface fifos are not supported on this platform")

func makeFIFO(string) error { return errFIFOUnsupported }

func openFIFO(string) (*os.File, error) { return nil, errFIFOUnsupported }
