// Package metrics counts supervisor and scheduler events with Prometheus
// collectors on a private registry.
//
// A *Metrics satisfies the supervisor's Recorder and the scheduler's
// respawn recorder, and renders its registry in the text exposition format
// for the health responder's /metrics path.
package metrics
