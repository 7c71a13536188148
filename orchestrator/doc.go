// Package orchestrator implements the run orchestration core: it turns the
// agent runtime's asynchronous, multiplexed message sequence into a coherent
// per-conversation result while mediating human tool approval and the
// filesystem write restriction, all under per-conversation cancellation.
//
// The Orchestrator owns the only shared mutable state of the core: the
// conversation-id to active-run registry and the request-id to
// pending-decision table. At most one run is active per conversation id;
// starting a new run for the same id cancels and evicts the previous one
// before the new one begins. Cancellation is idempotent and always resolves
// outstanding interactive decisions with a synthetic deny so no caller is
// left awaiting a response that will never arrive.
package orchestrator
