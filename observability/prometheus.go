package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromFactory implements MetricFactory on a Prometheus registerer.
type PromFactory struct {
	reg prometheus.Registerer
}

var _ MetricFactory = (*PromFactory)(nil)

// NewPromFactory creates a factory registering metrics with reg. Pass
// prometheus.DefaultRegisterer to use the default registry.
func NewPromFactory(reg prometheus.Registerer) *PromFactory {
	return &PromFactory{reg: reg}
}

type promCounter struct {
	vec *prometheus.CounterVec
}

func (c promCounter) Inc(labels ...string)            { c.vec.WithLabelValues(labels...).Inc() }
func (c promCounter) Add(v float64, labels ...string) { c.vec.WithLabelValues(labels...).Add(v) }

func (f *PromFactory) Counter(name, help string, labelNames ...string) Counter {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames)
	f.reg.MustRegister(vec)
	return promCounter{vec: vec}
}

type promGauge struct {
	vec *prometheus.GaugeVec
}

func (g promGauge) Set(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Set(v) }
func (g promGauge) Add(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Add(v) }

func (f *PromFactory) Gauge(name, help string, labelNames ...string) Gauge {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames)
	f.reg.MustRegister(vec)
	return promGauge{vec: vec}
}

type promHistogram struct {
	vec *prometheus.HistogramVec
}

func (h promHistogram) Observe(v float64, labels ...string) {
	h.vec.WithLabelValues(labels...).Observe(v)
}

func (f *PromFactory) Histogram(name, help string, buckets []float64, labelNames ...string) Histogram {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labelNames)
	f.reg.MustRegister(vec)
	return promHistogram{vec: vec}
}
