package subprocess

import (
	stderrors "errors"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/procpool/internal/config"
)

// unixControl signals and reaps children with kill(2) and wait4(2).
type unixControl struct{}

// Compile-time verification that unixControl implements ProcessControl.
var _ config.ProcessControl = unixControl{}

// Signal implements config.ProcessControl.
func (unixControl) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return unix.ESRCH
	}

	return unix.Kill(pid, sig)
}

// Wait implements config.ProcessControl.
func (unixControl) Wait(pid int, block bool) (bool, syscall.WaitStatus, error) {
	options := unix.WNOHANG
	if block {
		options = 0
	}

	var ws unix.WaitStatus

	for {
		wpid, err := unix.Wait4(pid, &ws, options, nil)
		if stderrors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return false, 0, err
		}

		if wpid == 0 {
			return false, 0, nil
		}

		return true, syscall.WaitStatus(ws), nil
	}
}

// isGone reports whether err means the process no longer exists as our child.
func isGone(err error) bool {
	return stderrors.Is(err, unix.ECHILD) || stderrors.Is(err, unix.ESRCH)
}
