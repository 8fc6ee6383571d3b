// Package metrics exposes prometheus counters for learning, prediction and
// persistence. They are registered on the default registry at init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FragmentsExtracted counts fragments produced by extraction passes.
	FragmentsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeserve_fragments_extracted_total",
		Help: "Fragments produced by extraction passes",
	})

	// FragmentsAccepted counts fragments admitted by the worth-learning policy.
	FragmentsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeserve_fragments_accepted_total",
		Help: "Fragments admitted into the pattern store",
	})

	// FragmentsRejected counts rejected fragments by reason.
	FragmentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeserve_fragments_rejected_total",
		Help: "Fragments rejected by the worth-learning policy",
	}, []string{"reason"})

	// PatternsInserted counts new patterns.
	PatternsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeserve_patterns_inserted_total",
		Help: "Patterns inserted into the store",
	})

	// PatternsReinforced counts frequency increments of existing patterns.
	PatternsReinforced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeserve_patterns_reinforced_total",
		Help: "Existing patterns reinforced",
	})

	// PatternsEvicted counts patterns dropped by capacity eviction.
	PatternsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeserve_patterns_evicted_total",
		Help: "Patterns evicted over capacity",
	})

	// Predictions counts emitted predictions by edit kind.
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeserve_predictions_total",
		Help: "Predictions emitted by edit kind",
	}, []string{"kind"})

	// PersistenceFailures counts failed store reads and writes.
	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeserve_persistence_failures_total",
		Help: "Failed persistence operations",
	}, []string{"op"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
