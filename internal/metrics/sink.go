package metrics

import "time"

// Sink records pipeline metrics.
// All methods are fire-and-forget: implementations must not block or propagate errors.
type Sink interface {
	// Pipeline
	DeliveryOutcome(status string)
	DeliveryDuration(d time.Duration)
	VersionConflict()
	PoolInFlight(n int64)

	// Tracking
	TrackingEvent(kind string, found bool)

	// Retry scheduler
	RetryCycle(selected, succeeded int, err error)

	// Bus
	TriggersFannedOut(n int)
	DuplicateTrigger()
	PublishError(topic string)
}

const (
	TrackingOpen  = "open"
	TrackingClick = "click"
)

type NoopSink struct{}

func (NoopSink) DeliveryOutcome(string) {}
func (NoopSink) DeliveryDuration(time.Duration) {}
func (NoopSink) VersionConflict() {}
func (NoopSink) PoolInFlight(int64) {}
func (NoopSink) TrackingEvent(string, bool) {}
func (NoopSink) RetryCycle(int, int, error) {}
func (NoopSink) TriggersFannedOut(int) {}
func (NoopSink) DuplicateTrigger() {}
func (NoopSink) PublishError(string) {}

var (
	_ Sink = NoopSink{}
	_ Sink = (*PrometheusSink)(nil)
)
