//go:build linux || darwin

package controlinterface

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// makeFIFO creates a named pipe at path. An existing FIFO is reused.
func makeFIFO(path string) error {
	err := unix.Mkfifo(path, 0o600)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Errorf("stat %s: %w", path, statErr)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("%s exists and is not a fifo", path)
	}
	return nil
}

// openFIFO opens path read-write so the open never waits for a peer and
// reads never see EOF when the workload closes its end.
func openFIFO(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}
