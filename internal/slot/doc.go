// Package slot implements the fixed-capacity table of supervised child
// processes.
//
// A Table holds N slots. Each slot is either free, reserved (a spawn is in
// progress), or active (a child is running and its two pipe handles are
// open). The slot index is the only identifier callers keep; it stays stable
// for as long as the slot is active.
//
// Handles own a raw file descriptor and close it exactly once, so the
// graceful and forceful termination paths can both release a slot without
// risking a double close.
package slot
