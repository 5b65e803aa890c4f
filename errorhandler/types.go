package errorhandler

import (
	"context"
)

// Handler reports a failure. It never decides what the worker does next; that
// is the poll error strategy's job. A returned error means the report itself
// failed, e.g. a dead letter record could not be published.
type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) error
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) error

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) error {
	return f(ctx, ec)
}
