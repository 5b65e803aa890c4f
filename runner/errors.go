package runner

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/header"
	"github.com/hugolhafner/go-consumer/kafka"
)

var (
	ErrAlreadyStarted = errors.New("runner: supervisor already started")
	ErrNoTopic        = errors.New("runner: topic is required")

	// errCannotRewind means records past the committed position were delivered
	// to a client that cannot seek back, so only a new client can redeliver them.
	errCannotRewind = errors.New("runner: client cannot rewind to the committed position")
)

// ProcessRecordsError carries the record whose processing raised Cause, so a
// skipping strategy commits exactly past it.
type ProcessRecordsError struct {
	Cause  error
	Record kafka.Record
}

func (e *ProcessRecordsError) Error() string {
	return fmt.Sprintf("process %s@%d: %v", e.Record.TopicPartition(), e.Record.Offset, e.Cause)
}

func (e *ProcessRecordsError) Unwrap() error {
	return e.Cause
}

// Phase reports whether the record failed before or inside the processor.
func (e *ProcessRecordsError) Phase() errorhandler.ErrorPhase {
	var deserErr *header.DeserializeError
	if errors.As(e.Cause, &deserErr) {
		return errorhandler.PhaseSerde
	}
	return errorhandler.PhaseProcessing
}

func AsProcessRecordsError(err error) (*ProcessRecordsError, bool) {
	var pErr *ProcessRecordsError
	if errors.As(err, &pErr) {
		return pErr, true
	}
	return nil, false
}

// PanicError is the cause of a ProcessRecordsError raised by a panicking processor.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panicked: %v", e.Value)
}

// CommitError reports a failed synchronous commit.
type CommitError struct {
	Reason string
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("%s commit failed: %v", e.Reason, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// PollError reports a failed poll.
type PollError struct {
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll failed: %v", e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// phaseOf classifies a session error for reporting.
func phaseOf(err error) errorhandler.ErrorPhase {
	if pErr, ok := AsProcessRecordsError(err); ok {
		return pErr.Phase()
	}

	var commitErr *CommitError
	if errors.As(err, &commitErr) {
		return errorhandler.PhaseCommit
	}

	var pollErr *PollError
	if errors.As(err, &pollErr) {
		return errorhandler.PhasePoll
	}

	return errorhandler.PhaseUnknown
}
