package deploy

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/domain"
)

var durationBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600}

type metrics struct {
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deploy_center",
			Subsystem: "deployments",
			Name:      "finished_total",
			Help:      "Deployments that reached a terminal state",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deploy_center",
			Subsystem: "deployments",
			Name:      "duration_seconds",
			Help:      "Execution time of started deployments",
			Buckets:   durationBuckets,
		}, []string{"status"}),
	}
	if err := reg.Register(m.finished); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.finished = existing
			}
		}
	}
	if err := reg.Register(m.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.duration = existing
			}
		}
	}
	return m
}

func (m *metrics) observe(status domain.DeploymentStatus, duration *time.Duration) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(status)).Inc()
	if duration != nil {
		m.duration.WithLabelValues(string(status)).Observe(duration.Seconds())
	}
}
