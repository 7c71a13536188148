package core

// Chunk represents one unit of the normalized output stream delivered to UI
// observers. Concrete chunk types implement the unexported isChunk marker
// enabling a closed set, so consumers can switch exhaustively by type.
type Chunk interface{ isChunk() }

// TextChunk carries an incremental fragment of assistant text.
type TextChunk struct {
	Content string `json:"content"`
}

// isChunk implements the Chunk interface for TextChunk.
func (TextChunk) isChunk() {}

// ToolStartChunk announces that the runtime began streaming a tool invocation.
// It is emitted before any input for the tool has been received, so a record
// exists even if the invocation never produces output.
type ToolStartChunk struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// isChunk implements the Chunk interface for ToolStartChunk.
func (ToolStartChunk) isChunk() {}

// ToolInputChunk carries the finalized input of a tool invocation, assembled
// from all partial fragments and serialized as a whole.
type ToolInputChunk struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// isChunk implements the Chunk interface for ToolInputChunk.
func (ToolInputChunk) isChunk() {}

// ToolResultChunk carries the (possibly truncated) output of a completed tool
// invocation together with its already-known input.
type ToolResultChunk struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// isChunk implements the Chunk interface for ToolResultChunk.
func (ToolResultChunk) isChunk() {}

// ApprovalChunk asks an external observer to approve or deny a pending tool
// invocation. The decision is returned out of band via the orchestrator's
// Resolve entry point, keyed by RequestID.
type ApprovalChunk struct {
	RequestID string `json:"request_id"`
	ToolName  string `json:"tool_name"`
	Input     string `json:"input"`
}

// isChunk implements the Chunk interface for ApprovalChunk.
func (ApprovalChunk) isChunk() {}

// AskUserChunk surfaces a structured multi-choice question the agent wants the
// human to answer. Questions holds the serialized question list verbatim.
type AskUserChunk struct {
	RequestID string `json:"request_id"`
	Questions string `json:"questions"`
}

// isChunk implements the Chunk interface for AskUserChunk.
func (AskUserChunk) isChunk() {}

// MCPStatusChunk reports the connection status of auxiliary MCP servers,
// emitted at most once per run when the runtime announces them.
type MCPStatusChunk struct {
	Servers []ServerStatus `json:"servers"`
}

// isChunk implements the Chunk interface for MCPStatusChunk.
func (MCPStatusChunk) isChunk() {}

// DoneChunk terminates the stream for a run. StopReason carries the last seen
// runtime stop reason ("aborted" when the run was cancelled), Subtype the last
// seen result subtype; both may be empty.
type DoneChunk struct {
	StopReason string `json:"stop_reason,omitempty"`
	Subtype    string `json:"subtype,omitempty"`
}

// isChunk implements the Chunk interface for DoneChunk.
func (DoneChunk) isChunk() {}

// ErrorChunk surfaces a sanitized, human-readable runtime failure. The run
// result still settles normally after an ErrorChunk.
type ErrorChunk struct {
	Message string `json:"message"`
}

// isChunk implements the Chunk interface for ErrorChunk.
func (ErrorChunk) isChunk() {}

// ServerStatus describes one auxiliary MCP server connection.
type ServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Connected reports whether the server completed its handshake.
func (s ServerStatus) Connected() bool { return s.Status == "connected" }
