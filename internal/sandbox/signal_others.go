//go:build !unix

package sandbox

import (
	"syscall"
)

func signalName(sig int) string {
	return syscall.Signal(sig).String()
}
