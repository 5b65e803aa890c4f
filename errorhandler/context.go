package errorhandler

import (
	"github.com/hugolhafner/go-consumer/kafka"
)

// ErrorContext provides context about an error that occurred while consuming.
type ErrorContext struct {
	// Record is the Kafka record that caused the error. Zero when the failure
	// is not tied to a record, e.g. a poll error.
	Record kafka.Record

	// Error is the error that occurred.
	Error error

	// Attempt counts consecutive failures of the same record, 1 indexed.
	Attempt int

	// Phase indicates where in the worker loop the error occurred
	Phase ErrorPhase

	// Worker identifies the worker that saw the error, e.g. "orders#2".
	Worker string
}

func NewErrorContext(record kafka.Record, err error) ErrorContext {
	return ErrorContext{
		Record:  record.Copy(),
		Error:   err,
		Attempt: 1,
	}
}

// HasRecord reports whether the error is tied to a record.
func (ec ErrorContext) HasRecord() bool {
	return ec.Record.Topic != ""
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithPhase(phase ErrorPhase) ErrorContext {
	ec.Phase = phase
	return ec
}

func (ec ErrorContext) WithWorker(worker string) ErrorContext {
	ec.Worker = worker
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}

// logFields are the key/value pairs every built-in handler logs.
func (ec ErrorContext) logFields() []any {
	return []any{
		"error", ec.Error,
		"phase", ec.Phase.String(),
		"worker", ec.Worker,
		"key", string(ec.Record.Key),
		"topic", ec.Record.Topic,
		"partition", ec.Record.Partition,
		"offset", ec.Record.Offset,
		"attempt", ec.Attempt,
	}
}
