// Package metrics provides Prometheus metrics for the territory engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks pipeline runs by status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "territory_engine",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		},
		[]string{"status"},
	)

	// RunDuration tracks pipeline run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "territory_engine",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// ClientsResolved tracks how many client records each run processed
	ClientsResolved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "territory_engine",
			Subsystem: "resolution",
			Name:      "clients_per_run",
			Help:      "Client records processed per run",
			Buckets:   []float64{10, 100, 1000, 10000, 100000},
		},
	)

	// DuplicatesMerged tracks duplicate records merged per run
	DuplicatesMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "territory_engine",
			Subsystem: "resolution",
			Name:      "duplicates_merged_total",
			Help:      "Total duplicate client records merged into a canonical record",
		},
	)

	// AssignmentsTotal tracks assignments emitted by rule
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "territory_engine",
			Subsystem: "assignment",
			Name:      "assignments_total",
			Help:      "Total assignments emitted by rule",
		},
		[]string{"rule"},
	)

	// UnassignedClients tracks clients no rule decided on, per run
	UnassignedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "territory_engine",
			Subsystem: "assignment",
			Name:      "unassigned_clients",
			Help:      "Clients left unassigned by the latest run",
		},
	)

	// ConflictsTotal tracks conflicts detected by kind
	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "territory_engine",
			Subsystem: "conflicts",
			Name:      "detected_total",
			Help:      "Total conflicts detected by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	// AssignmentChangesTotal tracks audit diff entries by change type
	AssignmentChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "territory_engine",
			Subsystem: "audit",
			Name:      "assignment_changes_total",
			Help:      "Total assignment changes recorded by change type",
		},
		[]string{"change_type"},
	)

	// KafkaMessagesConsumed tracks ingestion messages by outcome
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "territory_engine",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total ingestion messages consumed by outcome",
		},
		[]string{"outcome"},
	)
)
