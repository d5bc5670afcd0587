package engine

import "github.com/prometheus/client_golang/prometheus"

// Queue label values.
const (
	queueStart  = "start"
	queueDelete = "delete"
)

// Dispatch operation label values.
const (
	opUpdate           = "update"
	opDelete           = "delete"
	opControlInterface = "control_interface"
)

var (
	waitingWorkloads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anvil_waiting_workloads",
			Help: "Number of workloads waiting for their dependencies, by queue.",
		},
		[]string{"queue"},
	)

	promotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_promotions_total",
			Help: "Total number of workloads promoted out of a waiting queue.",
		},
		[]string{"queue"},
	)

	dispatchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_dispatch_failures_total",
			Help: "Total number of workload dispatches that failed, by operation.",
		},
		[]string{"operation"},
	)

	stateReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_state_reports_total",
			Help: "Total number of workload state reports accepted, by state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(waitingWorkloads)
	prometheus.MustRegister(promotionsTotal)
	prometheus.MustRegister(dispatchFailuresTotal)
	prometheus.MustRegister(stateReportsTotal)

	// Pre-initialize label combinations so they appear in /metrics before
	// the first event.
	for _, q := range []string{queueStart, queueDelete} {
		waitingWorkloads.WithLabelValues(q)
		promotionsTotal.WithLabelValues(q)
	}
	for _, op := range []string{opUpdate, opDelete, opControlInterface} {
		dispatchFailuresTotal.WithLabelValues(op)
	}
}
