package runner

// State is the lifecycle state of a worker.
//
//	Disconnected -> Polling -> (handled in place) -> ReconnectRequested -> Polling
//	                        \-> Stopped
type State int

const (
	// StateDisconnected means the worker holds no client and will create one.
	StateDisconnected State = iota
	// StatePolling means the worker is connected and keeps polling.
	StatePolling
	// StateReconnectRequested means the client is closed and recreated after
	// the reconnect delay.
	StateReconnectRequested
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StatePolling:
		return "POLLING"
	case StateReconnectRequested:
		return "RECONNECT_REQUESTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Connected reports whether the worker holds a usable client.
func (s State) Connected() bool {
	return s == StatePolling
}

// Retrying reports whether the worker keeps polling with its current client.
func (s State) Retrying() bool {
	return s == StatePolling
}

func (s State) ReconnectRequested() bool {
	return s == StateReconnectRequested
}

// connectedState is the state after a client was created.
func (s State) connectedState() State {
	if s == StateStopped {
		return s
	}
	return StatePolling
}

// disconnectedState is the state after client creation failed.
func (s State) disconnectedState() State {
	if s == StateStopped {
		return s
	}
	return StateDisconnected
}

// onBreak is the state after a batch was cut short by break on first error.
func (s State) onBreak() State {
	if s == StateStopped {
		return s
	}
	return StateReconnectRequested
}

// onStop is the state after a wakeup or cancellation ended the session.
func (s State) onStop() State {
	return StateStopped
}

// onStrategy is the state after strategy handled a session error. Stop always
// wins and a reconnect that was already requested is never cancelled.
func (s State) onStrategy(strategy PollErrorStrategy) State {
	if s == StateStopped {
		return s
	}

	switch strategy {
	case StrategyStop:
		return StateStopped
	case StrategyReconnect:
		return StateReconnectRequested
	default:
		if s == StateReconnectRequested {
			return s
		}
		return StatePolling
	}
}

// onEscalation is the state after an in-place recovery (forced commit or
// rewind) failed, so the position has to be re-derived by a new client.
func (s State) onEscalation() State {
	if s == StateStopped {
		return s
	}
	return StateReconnectRequested
}
