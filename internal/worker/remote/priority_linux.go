//go:build linux

package remote

import "golang.org/x/sys/unix"

// raisePriority raises the calling OS thread's scheduling priority. The
// remote worker runs on a single dedicated thread and should be scheduled
// promptly since it is typically the only path producing transcripts when
// no local model is loaded.
func raisePriority() {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -5)
}
