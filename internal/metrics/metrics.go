// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Parsing
	IntentsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatchain",
		Subsystem: "parser",
		Name:      "intents_total",
		Help:      "Total prompts interpreted, by resulting action and parser source",
	}, []string{"action", "source"})

	ParserFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatchain",
		Subsystem: "parser",
		Name:      "fallbacks_total",
		Help:      "Total model parses that fell back to the local rules",
	})

	// Simulation
	Simulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatchain",
		Subsystem: "simulator",
		Name:      "runs_total",
		Help:      "Total simulations, by strategy and risk level",
	}, []string{"strategy", "risk"})

	SimulationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatchain",
		Subsystem: "simulator",
		Name:      "fallbacks_total",
		Help:      "Total remote simulations answered by the local simulator",
	})

	SimulationGas = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chatchain",
		Subsystem: "simulator",
		Name:      "gas_estimate",
		Help:      "Estimated gas of valid simulations",
		Buckets:   prometheus.ExponentialBuckets(21000, 2, 8),
	})

	// Transactions
	TransactionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatchain",
		Subsystem: "tx",
		Name:      "submitted_total",
		Help:      "Total transactions recorded as submitted, by how they reached the chain",
	}, []string{"method"})

	ReceiptOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatchain",
		Subsystem: "tx",
		Name:      "receipts_total",
		Help:      "Total receipt polls finished, by final status",
	}, []string{"status"})

	PendingReceipts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatchain",
		Subsystem: "tx",
		Name:      "pending_receipts",
		Help:      "Receipt polls currently in flight",
	})
)

// Submission methods for TransactionsSubmitted.
const (
	MethodReported = "reported"
	MethodSigned   = "signed"
	MethodRelayed  = "relayed"
)
