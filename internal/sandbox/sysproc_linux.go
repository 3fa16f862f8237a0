package sandbox

import (
	"syscall"
)

// Children die with groom even if it is killed before it can reap them.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
