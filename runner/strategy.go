package runner

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidStrategy = errors.New("runner: invalid poll error strategy")

// PollErrorStrategy decides what a worker does when polling, processing or
// committing fails with an error that is not a plain processor failure.
type PollErrorStrategy int

const (
	// StrategyDiscard skips the failing record and keeps the client.
	StrategyDiscard PollErrorStrategy = iota
	// StrategyErrorHandler reports the error to the error handler, then
	// behaves like StrategyDiscard.
	StrategyErrorHandler
	// StrategyReconnect closes the client and resumes from the last commit
	// with a new one.
	StrategyReconnect
	// StrategyRetry keeps the client and polls the same position again.
	StrategyRetry
	// StrategyStop terminates the worker.
	StrategyStop
)

func (s PollErrorStrategy) String() string {
	switch s {
	case StrategyDiscard:
		return "DISCARD"
	case StrategyErrorHandler:
		return "ERROR_HANDLER"
	case StrategyReconnect:
		return "RECONNECT"
	case StrategyRetry:
		return "RETRY"
	case StrategyStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

func (s PollErrorStrategy) Valid() bool {
	return s >= StrategyDiscard && s <= StrategyStop
}

// skips reports whether the strategy moves past the failing record.
func (s PollErrorStrategy) skips() bool {
	return s == StrategyDiscard || s == StrategyErrorHandler
}

func ParsePollErrorStrategy(s string) (PollErrorStrategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DISCARD":
		return StrategyDiscard, nil
	case "ERROR_HANDLER":
		return StrategyErrorHandler, nil
	case "RECONNECT":
		return StrategyReconnect, nil
	case "RETRY":
		return StrategyRetry, nil
	case "STOP":
		return StrategyStop, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// UnmarshalText lets configuration decoders parse strategies by name.
func (s *PollErrorStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParsePollErrorStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
