package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsGenerator interface {
	IncRetry(op string)
	IncTask(task, status string)
	IncTx(state string)
	IncRotation(status string)
	IncNotification(status string)

	AddActiveRoutes(delta float64)
	AddUptime(float64)
}

// PiggyMetrics contains the instrumented metrics of a processing run
type PiggyMetrics struct {
	uptime prometheus.Counter

	numRetry        *prometheus.CounterVec
	numTask         *prometheus.CounterVec
	numTx           *prometheus.CounterVec
	numRotation     *prometheus.CounterVec
	numNotification *prometheus.CounterVec

	activeRoutes prometheus.Gauge
}

const piggyNamespace = "piggy"

func NewPiggyMetrics(reg prometheus.Registerer) *PiggyMetrics {
	return &PiggyMetrics{
		uptime: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: piggyNamespace,
				Name:      "uptime_milliseconds_total",
				Help:      "The elapse time in milliseconds since the process is booted",
			}),

		numRetry: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: piggyNamespace,
				Name:      "num_retry_total",
				Help:      "The number of retried attempts per wrapped operation",
			}, []string{"op"}),

		numTask: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: piggyNamespace,
				Name:      "num_task_total",
				Help:      "The number of task handler invocations by outcome",
			}, []string{"task", "status"}),

		numTx: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: piggyNamespace,
				Name:      "num_tx_total",
				Help:      "The number of submitted transactions by final state",
			}, []string{"state"}),

		numRotation: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: piggyNamespace,
				Name:      "num_proxy_rotation_total",
				Help:      "The number of proxy ip rotations",
			}, []string{"status"}),

		numNotification: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: piggyNamespace,
				Name:      "num_notification_total",
				Help:      "The number of notification delivered or dropped",
			}, []string{"status"}),

		activeRoutes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: piggyNamespace,
				Name:      "active_routes",
				Help:      "The number of wallet routes currently running",
			}),
	}
}

func (m *PiggyMetrics) IncRetry(op string) {
	m.numRetry.WithLabelValues(op).Inc()
}

func (m *PiggyMetrics) IncTask(task, status string) {
	m.numTask.WithLabelValues(task, status).Inc()
}

func (m *PiggyMetrics) IncTx(state string) {
	m.numTx.WithLabelValues(state).Inc()
}

func (m *PiggyMetrics) IncRotation(status string) {
	m.numRotation.WithLabelValues(status).Inc()
}

func (m *PiggyMetrics) IncNotification(status string) {
	m.numNotification.WithLabelValues(status).Inc()
}

func (m *PiggyMetrics) AddActiveRoutes(delta float64) {
	m.activeRoutes.Add(delta)
}

func (m *PiggyMetrics) AddUptime(total float64) {
	m.uptime.Add(total)
}

type noopMetrics struct{}

func (noopMetrics) IncRetry(string)         {}
func (noopMetrics) IncTask(string, string)  {}
func (noopMetrics) IncTx(string)            {}
func (noopMetrics) IncRotation(string)      {}
func (noopMetrics) IncNotification(string)  {}
func (noopMetrics) AddActiveRoutes(float64) {}
func (noopMetrics) AddUptime(float64)       {}

// Noop discards every observation.
var Noop MetricsGenerator = noopMetrics{}

// Ensure returns m, or Noop when m is nil.
func Ensure(m MetricsGenerator) MetricsGenerator {
	if m == nil {
		return Noop
	}
	return m
}
