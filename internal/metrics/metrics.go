package metrics

import (
	"fmt"
	"io"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/wagiedev/procpool/internal/config"
)

const namespace = "procpool"

// Exit reasons used as the reason label of procpool_exits_total.
const (
	ReasonExited   = "exited"
	ReasonSignaled = "signaled"
	ReasonUnknown  = "unknown"
)

// Metrics holds the collectors.
type Metrics struct {
	reg *prometheus.Registry

	spawns   *prometheus.CounterVec
	exits    *prometheus.CounterVec
	kills    prometheus.Counter
	active   prometheus.Gauge
	respawns *prometheus.CounterVec
}

// Compile-time verification that Metrics implements config.Recorder.
var _ config.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		spawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawns_total",
			Help:      "Spawn attempts by result.",
		}, []string{"result"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Reclaimed children by how they ended.",
		}, []string{"reason"}),
		kills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_kills_total",
			Help:      "Children that outlived the grace period.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_slots",
			Help:      "Slots holding a running child.",
		}),
		respawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "respawns_total",
			Help:      "Scheduler respawn attempts by worker.",
		}, []string{"worker"}),
	}

	m.reg.MustRegister(m.spawns, m.exits, m.kills, m.active, m.respawns)

	return m
}

// Spawned counts a started child.
func (m *Metrics) Spawned() {
	m.spawns.WithLabelValues("ok").Inc()
	m.active.Inc()
}

// SpawnFailed counts a failed spawn under reason.
func (m *Metrics) SpawnFailed(reason string) {
	m.spawns.WithLabelValues(reason).Inc()
}

// Reclaimed counts a freed slot.
func (m *Metrics) Reclaimed(exitCode int, signal syscall.Signal) {
	reason := ReasonUnknown

	switch {
	case signal != 0:
		reason = ReasonSignaled
	case exitCode >= 0:
		reason = ReasonExited
	}

	m.exits.WithLabelValues(reason).Inc()
	m.active.Dec()
}

// Killed counts a forceful termination.
func (m *Metrics) Killed() {
	m.kills.Inc()
}

// Respawned counts a scheduler respawn of worker.
func (m *Metrics) Respawned(worker string) {
	m.respawns.WithLabelValues(worker).Inc()
}

// WriteText writes every metric family in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}

	return nil
}
