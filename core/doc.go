// Package core provides the foundational domain types shared across AgentGate.
// It defines the core abstractions for:
//
//   - Chunks (the normalized output stream delivered to UI observers)
//   - Tool call records (reconstructed from fragmented runtime deltas)
//   - Policy settings (permission mode, tool allow-list, path restriction)
//   - Tool decisions (structured allow/deny outcomes for tool invocations)
//   - Run results (the settled outcome of one conversation turn)
//
// The package intentionally keeps implementation concerns (runtime transport,
// orchestration, approval state machines) out of scope, exposing small value
// types so higher layers can be composed and tested independently.
package core
