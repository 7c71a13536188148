package core

// ToolCallStatus tracks the lifecycle of a tool invocation. The only legal
// transition is ToolCallRunning -> ToolCallDone, never backward.
type ToolCallStatus string

const (
	// ToolCallRunning marks an invocation whose result has not arrived yet.
	ToolCallRunning ToolCallStatus = "running"
	// ToolCallDone marks an invocation whose result (or final input) arrived.
	ToolCallDone ToolCallStatus = "done"
)

// DefaultOutputLimit bounds the number of characters of tool output retained
// on a record. Output beyond the bound is truncated, never rejected.
const DefaultOutputLimit = 50_000

// ToolCallRecord is the reconstructed, structured view of one tool invocation
// streamed by the runtime. A stub record is created the moment the invocation
// begins streaming, guaranteeing a record exists even if output never arrives.
// Records are owned exclusively by the run that created them and surface to
// callers only in the final Result.
type ToolCallRecord struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Input  string         `json:"input"`
	Output string         `json:"output,omitempty"`
	Status ToolCallStatus `json:"status"`
}

// Truncate returns s limited to at most limit characters. A non-positive
// limit falls back to DefaultOutputLimit.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
