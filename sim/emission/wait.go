package emission

import (
	"fmt"
	"os"
	"time"
)

const pollInterval = 50 * time.Millisecond

// WaitStable blocks until the file exists, is non-empty, and its size and
// modification time stop changing between two consecutive polls, or until
// the timeout elapses. This is an explicit readiness signal for the
// asynchronous flush race between the backend process and the filesystem:
// once the single writer has exited, a stable observation means the file
// is fully written.
func WaitStable(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	var lastSize int64 = -1
	var lastMod time.Time
	for {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.Size() > 0 && info.Size() == lastSize && info.ModTime().Equal(lastMod):
			return nil
		case err == nil:
			lastSize = info.Size()
			lastMod = info.ModTime()
		case !os.IsNotExist(err):
			return err
		}

		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("emission file %s never appeared: %w", path, err)
			}
			return fmt.Errorf("emission file %s did not settle within %v", path, timeout)
		}
		time.Sleep(pollInterval)
	}
}
