package errorhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/logger"
)

// Silent drops every error.
func Silent() Handler {
	return HandlerFunc(
		func(context.Context, ErrorContext) error {
			return nil
		},
	)
}

// LogAndContinue logs the error and reports success.
func LogAndContinue(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) error {
			l.Error("Error consuming record", ec.logFields()...)
			return nil
		},
	)
}

// Multi hands the error to every handler. Failures are joined, and one
// failing handler does not stop the others.
func Multi(handlers ...Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) error {
			var errs []error
			for _, h := range handlers {
				if err := h.Handle(ctx, ec); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	)
}

// WithMaxAttempts retries inner when the report itself fails, waiting
// b.Next(attempt) in between. The last error is returned once maxAttempts
// reports failed.
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, inner Handler) Handler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) error {
			var err error
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				if err = inner.Handle(ctx, ec); err == nil {
					return nil
				}
				if attempt == maxAttempts {
					break
				}

				select {
				case <-ctx.Done():
					return errors.Join(err, ctx.Err())
				case <-time.After(b.Next(uint(attempt))):
				}
			}

			return fmt.Errorf("report failed after %d attempts: %w", maxAttempts, err)
		},
	)
}

// OnlyWithRecord passes errors tied to a record to inner and drops the rest,
// e.g. to keep poll errors away from a dead letter handler.
func OnlyWithRecord(inner Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) error {
			if !ec.HasRecord() {
				return nil
			}
			return inner.Handle(ctx, ec)
		},
	)
}

// ResultLogger logs the outcome of the next handler
func ResultLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) error {
			err := next.Handle(ctx, ec)
			if err != nil {
				l.Error("Error handler failed", append(ec.logFields(), "handler_error", err)...)
				return err
			}

			l.Log(level, "Error reported", ec.logFields()...)
			return nil
		},
	)
}
