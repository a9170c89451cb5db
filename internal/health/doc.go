// Package health answers liveness checks over TCP from a polling loop.
//
// The server never blocks its caller: Poll accepts at most one pending
// connection per call and answers it with a small JSON document, or with
// Prometheus metrics on /metrics when a MetricsWriter is installed.
package health
