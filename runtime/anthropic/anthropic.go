// Package anthropic adapts the Anthropic Messages API (streaming, with
// function/tool calling) to the runtime.Runtime contract. The adapter drives
// an agent loop: it streams one model turn, surfaces the raw block events as
// runtime messages, executes approved tool invocations through the configured
// executor and feeds the results back until the model stops requesting tools.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentgate/runtime"
)

// ToolExecutor runs one approved tool invocation and returns its textual
// output. isError marks the output as a failure for the model.
type ToolExecutor func(ctx context.Context, name, input string) (output string, isError bool)

// Options configures the Anthropic runtime adapter. Extend via functional
// options to preserve stability.
type Options struct {
	// Model is the default model id; a per-run policy model overrides it.
	Model anthropic.Model
	// MaxTokens bounds completion tokens per model call.
	MaxTokens int64
	// MaxTurns bounds agent loop iterations per submission.
	MaxTurns int
	// Tools lists the tool definitions offered to the model. A per-run
	// allowed-tools policy filters this set by name.
	Tools []anthropic.ToolUnionParam
	// Executor runs approved tool invocations. A nil executor reports every
	// invocation as failed.
	Executor ToolExecutor
}

// Runtime wraps the Anthropic Messages API behind the runtime.Runtime interface.
type Runtime struct {
	opts Options
}

// New creates a new Anthropic runtime adapter using the official client.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
		MaxTurns:  8,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runtime{opts: opts}
}

// Submit implements runtime.Runtime.
func (r *Runtime) Submit(ctx context.Context, req runtime.Request) (<-chan runtime.Message, <-chan error) {
	msgCh := make(chan runtime.Message, 32)
	errCh := make(chan error, 1)

	emit := func(msg runtime.Message) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case <-ctx.Done():
			return false
		case msgCh <- msg:
			return true
		}
	}

	go func() {
		defer close(msgCh)
		defer close(errCh)

		if err := r.run(ctx, req, emit); err != nil {
			errCh <- err
		}
	}()

	return msgCh, errCh
}

// newClient builds the per-submission client. The zero-config constructor
// reads ANTHROPIC_API_KEY and ANTHROPIC_BASE_URL from the environment, so a
// scoped credential override applied by the caller takes effect here; policy
// credentials passed directly win over the environment.
func (r *Runtime) newClient(req runtime.Request) anthropic.Client {
	var clientOpts []option.RequestOption
	if req.Policy.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(req.Policy.APIKey))
	}
	if req.Policy.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(req.Policy.BaseURL))
	}
	return anthropic.NewClient(clientOpts...)
}

func (r *Runtime) run(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
	client := r.newClient(req)

	params := anthropic.MessageNewParams{
		Model:     r.opts.Model,
		MaxTokens: r.opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Policy.Model != "" {
		params.Model = anthropic.Model(req.Policy.Model)
	}
	if req.Policy.MaxTokens > 0 {
		params.MaxTokens = int64(req.Policy.MaxTokens)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if tools := filterTools(r.opts.Tools, req.Policy.AllowedTools); len(tools) > 0 {
		params.Tools = tools
	}

	maxTurns := r.opts.MaxTurns
	if req.Policy.MaxTurns > 0 {
		maxTurns = req.Policy.MaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		final, err := r.streamTurn(ctx, &client, params, emit)
		if err != nil {
			return err
		}

		toolUses := toolUseBlocks(*final)
		if final.StopReason != anthropic.StopReasonToolUse || len(toolUses) == 0 {
			emit(runtime.ResultSummary{StopReason: string(final.StopReason), Subtype: "success"})
			return nil
		}

		params.Messages = append(params.Messages, final.ToParam())

		var resultBlocks []anthropic.ContentBlockParamUnion
		for _, tu := range toolUses {
			output, isError, err := r.invokeTool(ctx, req, tu.Name, string(tu.Input))
			if err != nil {
				return err
			}
			emit(runtime.ToolResult{ID: tu.ID, Name: tu.Name, Output: output, IsError: isError})
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(tu.ID, output, isError))
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(resultBlocks...))
	}

	emit(runtime.ResultSummary{StopReason: "max_turns", Subtype: "error_max_turns"})
	return nil
}

// streamTurn runs one streaming model call, forwarding block events as
// runtime messages while accumulating the complete response message.
func (r *Runtime) streamTurn(
	ctx context.Context,
	client *anthropic.Client,
	params anthropic.MessageNewParams,
	emit func(runtime.Message) bool,
) (*anthropic.Message, error) {
	stream := client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var final anthropic.Message

	for stream.Next() {
		event := stream.Current()
		if err := final.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream: %w", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				emit(runtime.ToolUseStart{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name})
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					emit(runtime.TextDelta{Text: delta.Text})
				}
			case anthropic.InputJSONDelta:
				if delta.PartialJSON != "" {
					emit(runtime.InputDelta{Partial: delta.PartialJSON})
				}
			}
		case anthropic.ContentBlockStopEvent:
			emit(runtime.BlockEnd{})
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic streaming error: %w", err)
	}

	return &final, nil
}

// invokeTool runs the veto hook and the approval callback before executing
// the tool. The decision always settles before execution; a denied invocation
// is reported to the model as an error result and never executed.
func (r *Runtime) invokeTool(ctx context.Context, req runtime.Request, name, input string) (string, bool, error) {
	if req.Hook != nil {
		if d := req.Hook(name, input); d != nil && !d.Allowed() {
			return d.Message, true, nil
		}
	}

	if req.CanUseTool != nil {
		decision, err := req.CanUseTool(ctx, name, input)
		if err != nil {
			return "", false, err
		}
		if !decision.Allowed() {
			return decision.Message, true, nil
		}
		if decision.UpdatedInput != "" {
			input = decision.UpdatedInput
		}
	}

	if r.opts.Executor == nil {
		return fmt.Sprintf("no executor configured for tool %s", name), true, nil
	}
	output, isError := r.opts.Executor(ctx, name, input)
	return output, isError, nil
}

// filterTools keeps only tools whose name appears in allowed. An empty
// allow-list keeps everything.
func filterTools(tools []anthropic.ToolUnionParam, allowed []string) []anthropic.ToolUnionParam {
	if len(allowed) == 0 {
		return tools
	}
	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}
	var out []anthropic.ToolUnionParam
	for _, t := range tools {
		if t.OfTool != nil && keep[t.OfTool.Name] {
			out = append(out, t)
		}
	}
	return out
}

func toolUseBlocks(msg anthropic.Message) []anthropic.ToolUseBlock {
	var out []anthropic.ToolUseBlock
	for _, block := range msg.Content {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}
