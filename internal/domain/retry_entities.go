package domain

import "time"

// RetryStatus labels a delivery's position in the retry lifecycle, used only
// for logging and metrics — the state machine itself is driven by the
// x-retry-count header carried on the delivery, not by this type.
type RetryStatus string

const (
	RetryStatusReceived  RetryStatus = "received"
	RetryStatusExecuting RetryStatus = "executing"
	RetryStatusRetrying  RetryStatus = "retrying"
	RetryStatusExhausted RetryStatus = "exhausted"
	RetryStatusDone      RetryStatus = "done"
)

// DeadLetterRecord describes a delivery being routed to the dead-letter
// exchange once its retry budget is exhausted or a failure is classified
// terminal. The consumer builds it for the terminal log line; it is not
// published. What reaches the dead-letter exchange is the original delivery,
// forwarded by the broker when the consumer nacks it without requeue.
type DeadLetterRecord struct {
	Job          ImageJob
	ErrorCode    ErrorCode
	ErrorMessage string
	RetryCount   int
	Partition    int
	FailedAt     time.Time
	Timings      PhaseTimings
}
