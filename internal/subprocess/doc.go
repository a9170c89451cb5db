// Package subprocess supervises a bounded pool of child worker processes.
//
// A Supervisor spawns children with two one-way pipes wired to their
// standard input and output, lets callers write requests and poll for
// responses without blocking, probes liveness, and terminates children by
// escalating from SIGTERM to SIGKILL after a grace period.
//
// Children are identified by the integer slot id returned from Spawn. The
// supervisor exclusively owns each child's pid and pipe descriptors; they
// are released exactly once, when the slot is reclaimed by Terminate or by
// a liveness probe that observes the exit.
//
// The supervisor is cooperative: Read never blocks, IsAlive never blocks,
// and only Write and the forceful path of Terminate hold the calling
// goroutine. A single driver is expected to poll all active slots in a
// loop; operations on different slots may also run concurrently.
package subprocess
