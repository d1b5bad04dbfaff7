// Package session implements the Session FSM (spec.md §4.8): the
// coordination spine driving ingest -> workflow identification ->
// iterative dependency resolution -> code emission. Event processing for
// a given session is strictly serial, guarded by the session's own mutex;
// concurrent sessions share nothing mutable. OTel spans per transition and
// the audit-chain entry per transition are grounded on the teacher's
// pkg/guardrails/session.go (RecordRequest/RecordResponse mutation style)
// and pkg/proxy/proxy.go's tracer.Start("llm.call", ...) convention.
package session

import "github.com/harvestcore/harvest/internal/errs"

// State is one FSM state, per spec.md §4.8.
type State string

const (
	StateInitializing               State = "initializing"
	StateParsingHar                 State = "parsingHar"
	StateAwaitingWorkflowSelection  State = "awaitingWorkflowSelection"
	StateProcessingDependencies     State = "processingDependencies"
	StateReadyForCodeGen            State = "readyForCodeGen"
	StateCodeGenerated              State = "codeGenerated"
	StateFailed                     State = "failed"
	StateCancelled                  State = "cancelled"
)

// terminal reports whether s is a final state that rejects further events
// (except the always-legal FAIL being a no-op on an already-failed session).
func terminal(s State) bool {
	return s == StateCodeGenerated || s == StateFailed || s == StateCancelled
}

// allowed maps each state to the states its declared events may reach,
// not counting CANCEL/FAIL which are legal from any non-terminal state.
var allowed = map[State]State{
	StateInitializing:              StateParsingHar,
	StateParsingHar:                StateAwaitingWorkflowSelection,
	StateAwaitingWorkflowSelection: StateProcessingDependencies,
	StateProcessingDependencies:    StateReadyForCodeGen,
	StateReadyForCodeGen:           StateCodeGenerated,
}

// checkTransition validates that moving from `from` to `to` is legal.
// processingDependencies self-loops (PROCESS_NEXT_NODE re-entering the
// same state while the queue drains) are always permitted.
func checkTransition(from, to State) error {
	if terminal(from) {
		return errs.New(errs.KindInvalidTransition, "session in terminal state %s cannot transition", from)
	}
	if to == StateCancelled || to == StateFailed {
		return nil
	}
	if from == StateProcessingDependencies && to == StateProcessingDependencies {
		return nil
	}
	if allowed[from] == to {
		return nil
	}
	return errs.New(errs.KindInvalidTransition, "illegal transition %s -> %s", from, to)
}
