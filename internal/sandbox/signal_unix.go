//go:build unix

package sandbox

import (
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

func signalName(sig int) string {
	if name := unix.SignalName(syscall.Signal(sig)); name != "" {
		return name
	}
	return "signal " + strconv.Itoa(sig)
}
