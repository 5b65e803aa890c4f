package builtins

import (
	"context"

	"github.com/hugolhafner/go-consumer/processor"
)

var _ processor.Processor = (*MapProcessor)(nil)

type MapFunc func(ctx context.Context, msg *processor.Message) (*processor.Message, error)

// MapProcessor rewrites a message before handing it to next. The original
// message is left untouched when mapper returns a copy.
type MapProcessor struct {
	mapper MapFunc
	next   processor.Processor
}

func NewMapProcessor(mapper MapFunc, next processor.Processor) *MapProcessor {
	return &MapProcessor{mapper: mapper, next: next}
}

func (p *MapProcessor) Process(ctx context.Context, msg *processor.Message) error {
	mapped, err := p.mapper(ctx, msg)
	if err != nil {
		return err
	}

	return p.next.Process(ctx, mapped)
}
