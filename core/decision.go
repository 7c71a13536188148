package core

// DecisionBehavior is the outcome category of a tool-use decision.
type DecisionBehavior string

const (
	// DecisionAllow permits the invocation to proceed.
	DecisionAllow DecisionBehavior = "allow"
	// DecisionDeny blocks the invocation with a human-readable reason.
	DecisionDeny DecisionBehavior = "deny"
)

// DefaultDenyMessage is used when an interactive denial supplies no message.
const DefaultDenyMessage = "User denied this action"

// ToolDecision is the structured outcome consumed by the runtime before
// executing a tool. Denials are not errors; they flow back to the model as
// failed tool results carrying Message.
type ToolDecision struct {
	Behavior DecisionBehavior `json:"behavior"`
	// UpdatedInput is the serialized input the runtime should execute with
	// when allowed. Usually the original input; for ask-user flows it is the
	// original input merged with the supplied answers.
	UpdatedInput string `json:"updated_input,omitempty"`
	// Message carries the denial reason.
	Message string `json:"message,omitempty"`
}

// Allow constructs an allow decision executing with input.
func Allow(input string) ToolDecision {
	return ToolDecision{Behavior: DecisionAllow, UpdatedInput: input}
}

// Deny constructs a deny decision with a human-readable reason.
func Deny(message string) ToolDecision {
	return ToolDecision{Behavior: DecisionDeny, Message: message}
}

// Allowed reports whether the decision permits execution.
func (d ToolDecision) Allowed() bool { return d.Behavior == DecisionAllow }

// DecisionResponse is the external resolution of a pending approval or
// ask-user request, supplied by the UI through the orchestrator.
type DecisionResponse struct {
	Behavior DecisionBehavior `json:"behavior"`
	// Message optionally overrides the default denial message.
	Message string `json:"message,omitempty"`
	// Answers holds the serialized answers for ask-user requests.
	Answers string `json:"answers,omitempty"`
}

// Message is one conversation turn supplied in the run history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is the settled outcome of one run. It always resolves: runtime
// failures surface as an ErrorChunk beforehand, cancellation as Aborted.
type Result struct {
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
	Aborted   bool             `json:"aborted"`
}
