package builtins

import (
	"context"
	"errors"

	"github.com/hugolhafner/go-consumer/processor"
)

var _ processor.Processor = (*BranchProcessor)(nil)

// Branch pairs a predicate with the processor receiving matching messages.
type Branch struct {
	Predicate PredicateFunc
	Processor processor.Processor
}

// BranchProcessor delivers a message to every branch whose predicate matches.
// Errors of all branches are joined.
type BranchProcessor struct {
	branches []Branch
}

func NewBranchProcessor(branches ...Branch) *BranchProcessor {
	return &BranchProcessor{branches: branches}
}

func (p *BranchProcessor) Process(ctx context.Context, msg *processor.Message) error {
	var errs []error
	for _, b := range p.branches {
		ok, err := b.Predicate(ctx, msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}

		if err := b.Processor.Process(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
