package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	log *zap.Logger

	deliveryOutcomes *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
	versionConflicts prometheus.Counter
	poolInFlight     prometheus.Gauge

	trackingEvents *prometheus.CounterVec

	retryCycles    *prometheus.CounterVec
	retrySelected  prometheus.Counter
	retrySucceeded prometheus.Counter

	triggersFannedOut prometheus.Counter
	duplicateTriggers prometheus.Counter
	publishErrors     *prometheus.CounterVec
}

func NewPrometheusSink(reg prometheus.Registerer, log *zap.Logger) *PrometheusSink {
	s := &PrometheusSink{log: log}
	s.deliveryOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_delivery_outcomes_total",
		Help: "Pipeline runs by final ledger status.",
	}, []string{"status"})
	s.deliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailflow_delivery_duration_seconds",
		Help:    "Wall time of one pipeline run.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	s.versionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_ledger_version_conflicts_total",
		Help: "Optimistic-lock conflicts on ledger writes.",
	})
	s.poolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mailflow_pool_in_flight",
		Help: "Blocking calls currently holding a worker-pool slot.",
	})
	s.trackingEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_tracking_events_total",
		Help: "Open and click callbacks by whether the token resolved.",
	}, []string{"kind", "found"})
	s.retryCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_retry_cycles_total",
		Help: "Retry scheduler runs by result.",
	}, []string{"result"})
	s.retrySelected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_retry_selected_total",
		Help: "Failed rows selected for resubmission.",
	})
	s.retrySucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_retry_succeeded_total",
		Help: "Failed rows that ended a retry as Sent.",
	})
	s.triggersFannedOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_triggers_fanned_out_total",
		Help: "Trigger events emitted by campaign matching.",
	})
	s.duplicateTriggers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_duplicate_triggers_total",
		Help: "Trigger events skipped as already seen.",
	})
	s.publishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_publish_errors_total",
		Help: "Failed publishes by topic.",
	}, []string{"topic"})

	s.register(reg, s.deliveryOutcomes, "mailflow_delivery_outcomes_total")
	s.register(reg, s.deliveryDuration, "mailflow_delivery_duration_seconds")
	s.register(reg, s.versionConflicts, "mailflow_ledger_version_conflicts_total")
	s.register(reg, s.poolInFlight, "mailflow_pool_in_flight")
	s.register(reg, s.trackingEvents, "mailflow_tracking_events_total")
	s.register(reg, s.retryCycles, "mailflow_retry_cycles_total")
	s.register(reg, s.retrySelected, "mailflow_retry_selected_total")
	s.register(reg, s.retrySucceeded, "mailflow_retry_succeeded_total")
	s.register(reg, s.triggersFannedOut, "mailflow_triggers_fanned_out_total")
	s.register(reg, s.duplicateTriggers, "mailflow_duplicate_triggers_total")
	s.register(reg, s.publishErrors, "mailflow_publish_errors_total")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn("metrics: failed to register", zap.String("metric", name), zap.Error(err))
	}
}

func (s *PrometheusSink) DeliveryOutcome(status string) {
	s.deliveryOutcomes.WithLabelValues(status).Inc()
}

func (s *PrometheusSink) DeliveryDuration(d time.Duration) {
	s.deliveryDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) VersionConflict() { s.versionConflicts.Inc() }

func (s *PrometheusSink) PoolInFlight(n int64) { s.poolInFlight.Set(float64(n)) }

func (s *PrometheusSink) TrackingEvent(kind string, found bool) {
	s.trackingEvents.WithLabelValues(kind, strconv.FormatBool(found)).Inc()
}

func (s *PrometheusSink) RetryCycle(selected, succeeded int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.retryCycles.WithLabelValues(result).Inc()
	s.retrySelected.Add(float64(selected))
	s.retrySucceeded.Add(float64(succeeded))
}

func (s *PrometheusSink) TriggersFannedOut(n int) { s.triggersFannedOut.Add(float64(n)) }

func (s *PrometheusSink) DuplicateTrigger() { s.duplicateTriggers.Inc() }

func (s *PrometheusSink) PublishError(topic string) {
	s.publishErrors.WithLabelValues(topic).Inc()
}
