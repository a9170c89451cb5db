// Package scheduler keeps named workers running on a supervisor.
//
// The scheduler polls each worker's liveness on every tick and, for workers
// marked for restart, spawns a replacement once the worker's backoff delay
// has passed. Delays grow exponentially across consecutive failures and
// reset once a worker has stayed up for the stability window.
package scheduler
