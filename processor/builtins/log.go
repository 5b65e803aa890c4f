package builtins

import (
	"context"

	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/processor"
)

var _ processor.Processor = (*LogProcessor)(nil)

// LogProcessor writes every message to a logger. It is the processor the CLI
// runs when no application is plugged in.
type LogProcessor struct {
	logger   logger.Logger
	level    logger.LogLevel
	withBody bool
}

func NewLogProcessor(l logger.Logger, level logger.LogLevel, withBody bool) *LogProcessor {
	return &LogProcessor{logger: l, level: level, withBody: withBody}
}

func (p *LogProcessor) Process(_ context.Context, msg *processor.Message) error {
	kv := []any{
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"timestamp", msg.Timestamp,
		"key", string(msg.Key),
		"headers", len(msg.Headers),
	}
	if p.withBody {
		kv = append(kv, "body", string(msg.Body))
	}

	p.logger.Log(p.level, "Consumed record", kv...)
	return nil
}
