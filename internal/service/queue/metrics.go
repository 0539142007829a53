package queue

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	pending *prometheus.GaugeVec
	running *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deploy_center",
			Subsystem: "queue",
			Name:      "pending_deployments",
			Help:      "Deployments waiting for a slot per project",
		}, []string{"project_id"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "deploy_center",
			Subsystem: "queue",
			Name:      "running_deployments",
			Help:      "Deployments executing per project",
		}, []string{"project_id"}),
	}
	m.pending = register(reg, m.pending)
	m.running = register(reg, m.running)
	return m
}

func register(reg prometheus.Registerer, gauge *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
	}
	return gauge
}

func (m *metrics) observe(projectID int64, pending, running int) {
	if m == nil {
		return
	}
	label := strconv.FormatInt(projectID, 10)
	m.pending.WithLabelValues(label).Set(float64(pending))
	m.running.WithLabelValues(label).Set(float64(running))
}
