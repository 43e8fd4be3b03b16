package migrate

// State tracks where a migration run is in its lifecycle. Transitions are
// strictly forward; there is no partial-success terminal state.
type State int

const (
	// StateNotStarted is the zero value before Run is called.
	StateNotStarted State = iota
	// StateConnecting covers source dial/ping and target open. Failures
	// here are fatal but leave the target untouched.
	StateConnecting
	// StateImporting covers all entity kinds, in dependency order.
	StateImporting
	// StateResolvingRelationships covers junction row creation.
	StateResolvingRelationships
	// StateVerifying covers count (and optional checksum) reconciliation.
	StateVerifying
	// StateSucceeded is terminal: every stage completed and verification
	// passed.
	StateSucceeded
	// StateFailed is terminal: some stage raised a fatal condition.
	StateFailed
)

// String returns the state name used in logs and reports.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateConnecting:
		return "connecting"
	case StateImporting:
		return "importing"
	case StateResolvingRelationships:
		return "resolving_relationships"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText makes the state render as its name in JSON reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
