package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wagiedev/procpool/internal/scheduler"
	"github.com/wagiedev/procpool/internal/subprocess"
)

// errQuit ends the interactive loop.
var errQuit = errors.New("quit")

// pool is what the REPL needs from the supervisor.
type pool interface {
	Write(id int, payload []byte) (int, error)
	Read(id int, maxLen int) ([]byte, error)
	Slots() []subprocess.SlotInfo
}

// workers is what the REPL needs from the scheduler.
type workers interface {
	Slot(name string) (int, bool)
	Stop(name string) error
	Workers() []scheduler.WorkerStatus
}

// repl executes interactive commands against the running pool.
type repl struct {
	pool    pool
	workers workers
	out     io.Writer
	now     func() time.Time
}

const replHelp = `commands:
  send <worker> <text>  write text and a newline to the worker
  recv <worker>         print pending output from the worker
  ps                    list workers and slots
  kill <worker>         stop the worker without restarting it
  help                  show this help
  quit                  terminate all workers and exit
`

// Execute runs one input line. It returns errQuit for quit.
func (r *repl) Execute(_ context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch cmd := fields[0]; cmd {
	case "send":
		if len(fields) < 3 {
			return fmt.Errorf("usage: send <worker> <text>")
		}

		return r.send(fields[1], strings.Join(fields[2:], " "))

	case "recv":
		if len(fields) != 2 {
			return fmt.Errorf("usage: recv <worker>")
		}

		return r.recv(fields[1])

	case "ps":
		return r.ps()

	case "kill":
		if len(fields) != 2 {
			return fmt.Errorf("usage: kill <worker>")
		}

		if err := r.workers.Stop(fields[1]); err != nil {
			return err
		}

		fmt.Fprintf(r.out, "stopped %s\n", fields[1])

		return nil

	case "help", "?":
		fmt.Fprint(r.out, replHelp)

		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (r *repl) slot(name string) (int, error) {
	id, ok := r.workers.Slot(name)
	if !ok {
		return -1, fmt.Errorf("worker %s is not running", name)
	}

	return id, nil
}

func (r *repl) send(name, text string) error {
	id, err := r.slot(name)
	if err != nil {
		return err
	}

	n, err := r.pool.Write(id, []byte(text+"\n"))
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "sent %d bytes to %s\n", n, name)

	return nil
}

func (r *repl) recv(name string) error {
	id, err := r.slot(name)
	if err != nil {
		return err
	}

	data, err := r.pool.Read(id, 0)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		fmt.Fprintln(r.out, "(no output)")

		return nil
	}

	fmt.Fprint(r.out, string(data))

	if data[len(data)-1] != '\n' {
		fmt.Fprintln(r.out)
	}

	return nil
}

func (r *repl) ps() error {
	pids := make(map[int]subprocess.SlotInfo)
	for _, s := range r.pool.Slots() {
		pids[s.ID] = s
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tSTATE\tSLOT\tPID\tUPTIME\tRESTARTS")

	for _, w := range r.workers.Workers() {
		state := "down"

		switch {
		case w.Running:
			state = "running"
		case w.Stopped:
			state = "stopped"
		case w.LastError != nil:
			state = "failing"
		}

		slot, pid, uptime := "-", "-", "-"

		if info, ok := pids[w.Slot]; ok && w.Running {
			slot = fmt.Sprint(info.ID)
			pid = fmt.Sprint(info.PID)
			uptime = r.now().Sub(info.StartedAt).Truncate(time.Second).String()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", w.Name, state, slot, pid, uptime, w.Restarts)
	}

	return tw.Flush()
}
