//go:build !linux

package worker

// lowerPriority is a no-op on platforms without a POSIX setpriority syscall
// wired up. Production deployments run on Linux.
func lowerPriority() {}
