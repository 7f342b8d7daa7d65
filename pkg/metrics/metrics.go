// Package metrics instruments the chain engine with Prometheus counters
// registered against a private registry. No HTTP /metrics handler is
// exposed here — that would be the excluded service surface — but the
// counters are real, scrapeable instruments a caller can wire to one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Collector owns the chain engine's Prometheus instruments.
type Collector struct {
	registry *prometheus.Registry

	BlocksCommitted      prometheus.Counter
	BlocksRejected       prometheus.Counter
	TransactionsAdmitted *prometheus.CounterVec // labeled by tx type
	TransactionsRejected *prometheus.CounterVec // labeled by reason
	ConsensusRounds      *prometheus.CounterVec // labeled by mechanism
	PermissionDenials    *prometheus.CounterVec // labeled by kind (acl/mls)
}

// NewCollector builds and registers a fresh set of counters.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "blocks_committed_total",
			Help:      "Total number of blocks successfully committed to the chain.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "blocks_rejected_total",
			Help:      "Total number of blocks rejected at structural, consensus, or execution checks.",
		}),
		TransactionsAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transactions_admitted_total",
			Help:      "Total number of transactions admitted to the pending pool, by type.",
		}, []string{"type"}),
		TransactionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transactions_rejected_total",
			Help:      "Total number of transactions rejected at admission, by reason.",
		}, []string{"reason"}),
		ConsensusRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "consensus_rounds_total",
			Help:      "Total number of consensus rounds prepared, by mechanism.",
		}, []string{"mechanism"}),
		PermissionDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "permission_denials_total",
			Help:      "Total number of permission denials, by subsystem.",
		}, []string{"subsystem"}),
	}

	registry.MustRegister(
		c.BlocksCommitted,
		c.BlocksRejected,
		c.TransactionsAdmitted,
		c.TransactionsRejected,
		c.ConsensusRounds,
		c.PermissionDenials,
	)
	return c
}

// Gather exposes the registry's current metric families, for a caller that
// wants to scrape or log them without the core owning an HTTP surface.
func (c *Collector) Gather() ([]*dto.MetricFamily, error) {
	return c.registry.Gather()
}
