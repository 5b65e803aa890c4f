package builtins

import (
	"context"

	"github.com/hugolhafner/go-consumer/processor"
)

var _ processor.Processor = (*ChainProcessor)(nil)

// ChainProcessor runs processors in order and stops at the first error.
type ChainProcessor struct {
	processors []processor.Processor
}

func NewChainProcessor(processors ...processor.Processor) *ChainProcessor {
	return &ChainProcessor{processors: processors}
}

func (p *ChainProcessor) Process(ctx context.Context, msg *processor.Message) error {
	for _, next := range p.processors {
		if err := next.Process(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}
