package push

// coalesce combines a prior pending operation on the same uid with a newly
// submitted one, per spec §4.4's table. drop is true when the result is the
// empty set (Create+Delete cancels out); when drop is false, result replaces
// prior in the store (or is appended, if hasPrior is false).
func coalesce(prior PendingOperation, hasPrior bool, next PendingOperation) (result PendingOperation, drop bool) {
	if !hasPrior {
		return next, false
	}

	switch {
	case prior.Kind == OpCreate && next.Kind == OpUpdate:
		// Create(E1) + Update(E2) -> Create(E2)
		merged := prior
		merged.Event = next.Event
		return merged, false

	case prior.Kind == OpCreate && next.Kind == OpDelete:
		// Create(E1) + Delete -> drop both, never sent to the server
		return PendingOperation{}, true

	case prior.Kind == OpUpdate && next.Kind == OpUpdate:
		// Update(E1) + Update(E2) -> Update(E2)
		merged := prior
		merged.Event = next.Event
		return merged, false

	case prior.Kind == OpUpdate && next.Kind == OpDelete:
		// Update(E1) + Delete -> Delete
		merged := prior
		merged.Kind = OpDelete
		merged.Event = next.Event
		return merged, false

	case prior.Kind == OpDelete && next.Kind == OpCreate:
		// Delete + Create(E2) -> Update(E2), keeping the prior op's href
		merged := prior
		merged.Kind = OpUpdate
		merged.Event = next.Event
		return merged, false

	default:
		// Any other combination (e.g. a second Create after a Create) is
		// not reachable through QueueCreate/QueueUpdate/QueueDelete's
		// kind-specific entry points, but falls back to "as submitted".
		return next, false
	}
}
