package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"os"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sys/unix"

	"github.com/wagiedev/procpool/internal/cli"
	"github.com/wagiedev/procpool/internal/errors"
	"github.com/wagiedev/procpool/internal/slot"
)

// maxStderrLineSize is the longest stderr line delivered to the callback.
const maxStderrLineSize = 1024 * 1024 // 1MB

// Spawn starts command with args and env in a free slot and returns its id.
//
// The child's standard input is the write side of one pipe and its standard
// output the read side of another; the supervisor keeps the opposite ends,
// with the output end in non-blocking mode. argv[0] is command, followed by
// args in order. env entries overwrite variables of the same name inherited
// from the supervisor.
//
// If command cannot be found or its exec fails, Spawn still succeeds: a
// stand-in child exits with status 127, which is reported by IsAlive and
// Probe.
//
// Returns SlotExhaustedError when every slot is active, PipeCreationError
// or ForkError when no child could be started at all, and
// InvalidCommandError for inputs that cannot be passed to exec.
func (s *Supervisor) Spawn(ctx context.Context, command string, args []string, env map[string]string) (int, error) {
	id, err := s.spawn(ctx, command, args, env)
	if err != nil {
		s.rec.SpawnFailed(failureReason(err))

		return id, err
	}

	s.rec.Spawned()

	return id, nil
}

// failureReason classifies a Spawn error for the recorder.
func failureReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrSlotExhausted):
		return "exhausted"
	case stderrors.Is(err, errors.ErrPipeCreation):
		return "pipe"
	case stderrors.Is(err, errors.ErrFork):
		return "fork"
	case stderrors.Is(err, errors.ErrInvalidCommand):
		return "invalid"
	default:
		return "other"
	}
}

func (s *Supervisor) spawn(ctx context.Context, command string, args []string, env map[string]string) (int, error) {
	if s.closed.Load() {
		return -1, errors.ErrSupervisorClosed
	}

	if err := ctx.Err(); err != nil {
		return -1, err
	}

	cmd, err := cli.Build(s.resolver, command, args, env, s.opts.Env)
	if err != nil {
		s.log.Debug("Rejected spawn request", "command", command, "error", err)

		return -1, err
	}

	id, err := s.table.Allocate()
	if err != nil {
		s.log.Warn("No free process slot", "command", command, "capacity", s.table.Capacity())

		return -1, err
	}

	s.clearExit(id)

	// parent -> child
	var toChild [2]int
	if err := unix.Pipe2(toChild[:], unix.O_CLOEXEC); err != nil {
		s.table.Release(id)
		s.log.Error("Failed to create stdin pipe", "slot", id, "error", err)

		return -1, &errors.PipeCreationError{Err: err}
	}

	// child -> parent
	var fromChild [2]int
	if err := unix.Pipe2(fromChild[:], unix.O_CLOEXEC); err != nil {
		closeFds(toChild[0], toChild[1])
		s.table.Release(id)
		s.log.Error("Failed to create stdout pipe", "slot", id, "error", err)

		return -1, &errors.PipeCreationError{Err: err}
	}

	childStdin := os.NewFile(uintptr(toChild[0]), "stdin")
	childStdout := os.NewFile(uintptr(fromChild[1]), "stdout")

	childStderr := os.Stderr

	var stderrReader *os.File

	if s.opts.Stderr != nil {
		r, w, err := os.Pipe()
		if err != nil {
			_ = childStdin.Close()
			_ = childStdout.Close()
			closeFds(toChild[1], fromChild[0])
			s.table.Release(id)
			s.log.Error("Failed to create stderr pipe", "slot", id, "error", err)

			return -1, &errors.PipeCreationError{Err: err}
		}

		childStderr = w
		stderrReader = r
	}

	files := []*os.File{childStdin, childStdout, childStderr}

	var (
		proc     *os.Process
		startErr error
	)

	if cmd.Missing {
		s.log.Debug("Command not found, starting stand-in", "slot", id, "command", command)

		proc, startErr = startChild(cli.StandIn(s.opts.ExecShell, cmd.Env), files)
	} else {
		proc, startErr = startChild(cmd, files)
		if startErr != nil && execFailed(startErr) {
			s.log.Debug("Exec failed, starting stand-in", "slot", id, "command", command, "error", startErr)

			proc, startErr = startChild(cli.StandIn(s.opts.ExecShell, cmd.Env), files)
		}
	}

	// The child holds its own copies now.
	_ = childStdin.Close()
	_ = childStdout.Close()

	if stderrReader != nil {
		_ = childStderr.Close()
	}

	if startErr != nil {
		closeFds(toChild[1], fromChild[0])

		if stderrReader != nil {
			_ = stderrReader.Close()
		}

		s.table.Release(id)
		s.log.Error("Failed to start child process", "slot", id, "command", command, "error", startErr)

		return -1, &errors.ForkError{Command: command, Err: startErr}
	}

	pid := proc.Pid

	// Reaping goes through wait4 on the pid.
	_ = proc.Release()

	// Both supervisor ends are non-blocking. Write waits on a full stdin
	// pipe itself, in steps a reclaim can interleave with.
	err = unix.SetNonblock(fromChild[0], true)
	if err == nil {
		err = unix.SetNonblock(toChild[1], true)
	}

	if err != nil {
		s.log.Error("Failed to set pipes non-blocking", "slot", id, "pid", pid, "error", err)

		_ = s.ctl.Signal(pid, syscall.SIGKILL)
		_, _, _ = s.ctl.Wait(pid, true)

		closeFds(toChild[1], fromChild[0])

		if stderrReader != nil {
			_ = stderrReader.Close()
		}

		s.table.Release(id)

		return -1, &errors.PipeCreationError{Err: err}
	}

	token := ulid.Make().String()

	if err := s.table.Activate(id, pid,
		slot.NewHandle(toChild[1], "stdin"),
		slot.NewHandle(fromChild[0], "stdout"),
		slot.Meta{Token: token, Command: command, StartedAt: s.clock.Now()},
	); err != nil {
		// Unreachable while Allocate and Activate are paired.
		_ = s.ctl.Signal(pid, syscall.SIGKILL)
		_, _, _ = s.ctl.Wait(pid, true)

		closeFds(toChild[1], fromChild[0])

		return -1, err
	}

	if stderrReader != nil {
		s.streamStderr(id, stderrReader)
	}

	s.log.Info("Spawned child process",
		"slot", id,
		"pid", pid,
		"token", token,
		"command", command,
		"args", len(cmd.Argv)-1,
	)

	return id, nil
}

// startChild starts c with files as its standard streams.
func startChild(c *cli.Command, files []*os.File) (*os.Process, error) {
	//nolint:gosec // G204: launching caller-supplied worker commands is the point
	return os.StartProcess(c.Path, c.Argv, &os.ProcAttr{
		Env:   c.Env,
		Files: files,
	})
}

// execFailed reports whether err from os.StartProcess came from the exec
// in the child rather than from creating the child. Resource exhaustion
// means no child ran at all.
func execFailed(err error) bool {
	errno, ok := stderrors.AsType[syscall.Errno](err)
	if !ok {
		return false
	}

	switch errno {
	case syscall.EAGAIN, syscall.ENOMEM, syscall.EMFILE, syscall.ENFILE:
		return false
	default:
		return true
	}
}

// streamStderr delivers each stderr line of slot id to the callback.
// The goroutine ends when every writer of the pipe has exited.
func (s *Supervisor) streamStderr(id int, r *os.File) {
	s.stderrWg.Go(func() {
		defer r.Close()

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxStderrLineSize)

		for scanner.Scan() {
			s.opts.Stderr(id, scanner.Text())
		}

		if err := scanner.Err(); err != nil {
			s.log.Debug("Stderr scanner error", "slot", id, "error", err)
		}
	})
}

// closeFds closes raw descriptors, ignoring errors.
func closeFds(fds ...int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// uptime reports how long slot sl has been running.
func (s *Supervisor) uptime(sl slot.Slot) time.Duration {
	if sl.StartedAt.IsZero() {
		return 0
	}

	return s.clock.Now().Sub(sl.StartedAt)
}
