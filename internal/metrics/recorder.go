package metrics

import "time"

// Recorder defines observability hooks for reconciliation passes and
// outbox deliveries. All methods must be safe to call on NoopRecorder so
// metrics stay optional.
type Recorder interface {
	ObservePassDuration(d time.Duration)
	IncPassOutcome(outcome string) // outcome: ok|partial|aborted|interrupted
	AddEntities(kind, change string, n int)
	IncFetchFailure(kind string)
	IncCommitFailure()
	IncDelivery(transport, result string) // result: sent|retry|failed
	SetPending(n int)
}

// Pass outcomes.
const (
	OutcomeOK          = "ok"
	OutcomePartial     = "partial"
	OutcomeAborted     = "aborted"
	OutcomeInterrupted = "interrupted"
)

// Delivery results.
const (
	DeliverySent   = "sent"
	DeliveryRetry  = "retry"
	DeliveryFailed = "failed"
)

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(time.Duration) {}
func (NoopRecorder) IncPassOutcome(string)             {}
func (NoopRecorder) AddEntities(string, string, int)   {}
func (NoopRecorder) IncFetchFailure(string)            {}
func (NoopRecorder) IncCommitFailure()                 {}
func (NoopRecorder) IncDelivery(string, string)        {}
func (NoopRecorder) SetPending(int)                    {}
