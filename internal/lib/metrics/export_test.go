package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Metrics) Rejections() *prometheus.CounterVec {
	return m.rejections
}
