package runner

import "github.com/hugolhafner/go-consumer/kafka"

// ProcessResult is the outcome of processing one batch: whether it was cut
// short by break on first error and the marker of the last record that may be
// committed. It is carried from batch to batch within a session.
type ProcessResult struct {
	breakOnErrorHit  bool
	lastOffsetMarker kafka.CommitMarker
}

// NewUnprocessed is the result before any batch of a session was processed.
func NewUnprocessed() ProcessResult {
	return ProcessResult{}
}

func (r ProcessResult) BreakOnErrorHit() bool {
	return r.breakOnErrorHit
}

func (r ProcessResult) LastOffsetMarker() kafka.CommitMarker {
	return r.lastOffsetMarker
}

func (r ProcessResult) advance(marker kafka.CommitMarker) ProcessResult {
	if marker != nil {
		r.lastOffsetMarker = marker
	}
	return r
}

func (r ProcessResult) broken() ProcessResult {
	r.breakOnErrorHit = true
	return r
}
