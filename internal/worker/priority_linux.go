//go:build linux

package worker

import "golang.org/x/sys/unix"

// lowerPriority lowers the calling OS thread's scheduling priority so
// inference work never starves the HTTP/websocket accept loop.
func lowerPriority() {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, 10)
}
