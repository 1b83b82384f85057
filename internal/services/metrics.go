package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serviceMetrics struct {
	aggregations    *prometheus.CounterVec
	filteredSamples prometheus.Counter
	ingestedRecords prometheus.Counter
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	factory := promauto.With(reg)
	return &serviceMetrics{
		aggregations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posture_aggregations_total",
				Help: "Number of sample windows aggregated, by outcome",
			},
			[]string{"outcome"},
		),
		filteredSamples: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "posture_filtered_samples_total",
				Help: "Number of malformed samples dropped before aggregation",
			},
		),
		ingestedRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "posture_ingested_records_total",
				Help: "Number of posture records stored",
			},
		),
	}
}
