package errorhandler

import (
	"context"
)

// ErrorPhase indicates where in the worker loop an error occurred
type ErrorPhase int

const (
	PhaseUnknown    ErrorPhase = iota // zero value - uninitialized phase
	PhaseSerde                        // error deserializing record headers
	PhaseProcessing                   // error returned or raised by the application processor
	PhasePoll                         // error fetching records
	PhaseCommit                       // error committing offsets
)

func (p ErrorPhase) String() string {
	switch p {
	case PhaseSerde:
		return "serde"
	case PhaseProcessing:
		return "processing"
	case PhasePoll:
		return "poll"
	case PhaseCommit:
		return "commit"
	default:
		return "unknown"
	}
}

var _ Handler = (*PhaseRouter)(nil)

// PhaseRouter hands an error to the handler registered for its phase.
type PhaseRouter struct {
	handler Handler
	routes  map[ErrorPhase]Handler
}

// NewPhaseRouter creates a new PhaseRouter. Phases without a route, or with a
// nil one, fall back to handler. If handler is nil, errors without a route are
// dropped silently.
func NewPhaseRouter(handler Handler, routes map[ErrorPhase]Handler) *PhaseRouter {
	if handler == nil {
		handler = Silent()
	}

	copied := make(map[ErrorPhase]Handler, len(routes))
	for phase, h := range routes {
		if h != nil {
			copied[phase] = h
		}
	}

	return &PhaseRouter{
		handler: handler,
		routes:  copied,
	}
}

func (r *PhaseRouter) Handle(ctx context.Context, ec ErrorContext) error {
	if h, ok := r.routes[ec.Phase]; ok {
		return h.Handle(ctx, ec)
	}

	return r.handler.Handle(ctx, ec)
}
