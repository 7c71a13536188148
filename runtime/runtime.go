// Package runtime defines the narrow contract between the orchestration core
// and an external agent runtime: submit one prompt plus options, receive an
// asynchronous sequence of protocol messages. Concrete adapters live in the
// runtime/anthropic and runtime/openai subpackages; MockRuntime supports
// tests and examples without network access.
package runtime

import (
	"context"

	"github.com/hupe1980/agentgate/core"
)

// Message is one protocol message produced by the runtime's async sequence.
// Concrete message types implement the unexported isMessage marker enabling a
// closed set dispatched exhaustively by the stream interpreter.
type Message interface{ isMessage() }

// TextDelta is an incremental fragment of assistant text.
type TextDelta struct {
	Text string
}

// isMessage implements the Message interface for TextDelta.
func (TextDelta) isMessage() {}

// ToolUseStart announces the beginning of a streamed tool invocation block.
// ID may be empty when the runtime did not assign one; the interpreter
// synthesizes an id in that case.
type ToolUseStart struct {
	ID   string
	Name string
}

// isMessage implements the Message interface for ToolUseStart.
func (ToolUseStart) isMessage() {}

// InputDelta is a raw fragment of the current tool invocation's input. The
// fragments concatenate into one JSON document; individual fragments need not
// be valid JSON on their own.
type InputDelta struct {
	Partial string
}

// isMessage implements the Message interface for InputDelta.
func (InputDelta) isMessage() {}

// BlockEnd closes the content block in progress (text or tool input).
type BlockEnd struct{}

// isMessage implements the Message interface for BlockEnd.
func (BlockEnd) isMessage() {}

// ToolResult reports the outcome of a tool invocation executed by the runtime.
type ToolResult struct {
	ID      string
	Name    string
	Output  string
	IsError bool
}

// isMessage implements the Message interface for ToolResult.
func (ToolResult) isMessage() {}

// ResultSummary carries turn-level metadata. Not every sequence includes one;
// when several arrive the last one wins.
type ResultSummary struct {
	StopReason string
	Subtype    string
}

// isMessage implements the Message interface for ResultSummary.
func (ResultSummary) isMessage() {}

// SystemInit announces runtime initialization details, in particular the
// connection status of configured MCP servers.
type SystemInit struct {
	Servers []core.ServerStatus
}

// isMessage implements the Message interface for SystemInit.
func (SystemInit) isMessage() {}

// PreToolHook is a narrow veto evaluated before every tool execution,
// independently of (and in addition to) the approval callback. A nil return
// allows the invocation; a non-nil deny decision blocks it. The hook never
// rewrites input.
type PreToolHook func(toolName, input string) *core.ToolDecision

// CanUseTool decides whether a tool invocation may proceed. Implementations
// may suspend for an arbitrarily long time while a human decides; runtimes
// must keep the decision ordered before executing the tool and must honor
// ctx cancellation.
type CanUseTool func(ctx context.Context, toolName, input string) (core.ToolDecision, error)

// Request carries everything a runtime needs for one run.
type Request struct {
	// Prompt is the flattened conversation: tagged history plus the active
	// user message.
	Prompt string
	// SystemPrompt is prepended as the system instruction when non-empty.
	SystemPrompt string
	// Policy is the immutable per-run policy (model, limits, tools, mode).
	Policy core.PolicySettings
	// Hook, when non-nil, is evaluated before every tool execution.
	Hook PreToolHook
	// CanUseTool, when non-nil, gates every tool execution after the hook.
	CanUseTool CanUseTool
}

// Runtime is the minimal interface the orchestration core drives. Submit
// returns immediately with two channels: messages delivers the ordered
// protocol sequence and is closed on completion; errs carries at most one
// terminal error then closes. Cancellation happens via ctx.
type Runtime interface {
	Submit(ctx context.Context, req Request) (<-chan Message, <-chan error)
}
