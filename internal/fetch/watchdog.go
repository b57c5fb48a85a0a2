package fetch

import (
	"context"
	"os"
	"syscall"
	"time"
)

const defaultWatchInterval = time.Second

// BindToProcess derives a context that is cancelled when the process with
// the given pid exits, polled at interval. A long download launched on
// behalf of an editor process must not outlive it; the caller binds the
// fetch context to the editor's pid and the download aborts once the parent
// is gone. The returned stop func releases the polling goroutine.
func BindToProcess(parent context.Context, pid int, interval time.Duration) (context.Context, context.CancelFunc) {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !processAlive(pid) {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}

// processAlive reports whether a process with the pid exists. Signal 0
// performs the existence check without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
