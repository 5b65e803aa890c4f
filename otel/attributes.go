package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrWorker        = attribute.Key("consumer.worker")
	AttrProcessStatus = attribute.Key("consumer.process.status")
	AttrPollStatus    = attribute.Key("consumer.poll.status")
	AttrCommitStatus  = attribute.Key("consumer.commit.status")
	AttrCommitReason  = attribute.Key("consumer.commit.reason")
	AttrErrorPhase    = attribute.Key("consumer.error.phase")
	AttrStrategy      = attribute.Key("consumer.poll_error.strategy")
)

// Process status values
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusReported = "reported"
	StatusError    = "error"
)

// Commit reason values
const (
	CommitNormal   = "normal"
	CommitStopping = "stopping"
	CommitForced   = "forced"
)
