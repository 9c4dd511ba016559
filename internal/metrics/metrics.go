// Package metrics exposes Prometheus collectors for tank activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Relays       *prometheus.CounterVec   // instance, result
	GasUsed      *prometheus.HistogramVec // instance
	PaymentsWei  *prometheus.CounterVec   // instance
	Deposits     *prometheus.CounterVec   // instance
	AdminChanges *prometheus.CounterVec   // instance, action
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Relays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gastank",
			Name:      "relays_total",
			Help:      "Relay operations handled, by result.",
		}, []string{"instance", "result"}),
		GasUsed: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gastank",
			Name:      "forwarded_gas_used",
			Help:      "Gas consumed by forwarded calls.",
			Buckets:   prometheus.ExponentialBuckets(1_000, 2, 14),
		}, []string{"instance"}),
		PaymentsWei: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gastank",
			Name:      "payments_wei_total",
			Help:      "Amount debited from tenants for settled relays.",
		}, []string{"instance"}),
		Deposits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gastank",
			Name:      "deposits_total",
			Help:      "Deposits accepted.",
		}, []string{"instance"}),
		AdminChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gastank",
			Name:      "admin_changes_total",
			Help:      "Owner-only configuration changes and withdrawals.",
		}, []string{"instance", "action"}),
	}
}
