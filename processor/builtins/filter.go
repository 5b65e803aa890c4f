package builtins

import (
	"context"

	"github.com/hugolhafner/go-consumer/processor"
)

var _ processor.Processor = (*FilterProcessor)(nil)

type PredicateFunc func(ctx context.Context, msg *processor.Message) (bool, error)

// FilterProcessor hands messages matching predicate to next and silently
// accepts the rest.
type FilterProcessor struct {
	predicate PredicateFunc
	next      processor.Processor
}

func NewFilterProcessor(predicate PredicateFunc, next processor.Processor) *FilterProcessor {
	return &FilterProcessor{predicate: predicate, next: next}
}

func (p *FilterProcessor) Process(ctx context.Context, msg *processor.Message) error {
	if ok, err := p.predicate(ctx, msg); err != nil {
		return err
	} else if ok {
		return p.next.Process(ctx, msg)
	}

	return nil
}
