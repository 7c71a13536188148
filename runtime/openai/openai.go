// Package openai adapts the OpenAI Chat Completions API (streaming, with
// function/tool calling) to the runtime.Runtime contract. Tool-call argument
// deltas arrive fragmented across chunks; the adapter aggregates them per
// call index, surfaces them as runtime messages and drives the tool loop
// until the model stops requesting tools.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentgate/runtime"
)

// ToolExecutor runs one approved tool invocation and returns its textual
// output. isError marks the output as a failure for the model.
type ToolExecutor func(ctx context.Context, name, input string) (output string, isError bool)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// allowing reconstruction of complete invocations when the finish reason is
// emitted. Internal helper (unexported).
type aggCall struct{ id, name, args string }

// Options configure the OpenAI runtime adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal.
type Options struct {
	// Model is the default model id; a per-run policy model overrides it.
	Model string
	// MaxCompletionTokens bounds completion tokens per model call.
	MaxCompletionTokens int64
	// MaxTurns bounds agent loop iterations per submission.
	MaxTurns int
	// Tools lists the tool definitions offered to the model. A per-run
	// allowed-tools policy filters this set by name.
	Tools []openai.ChatCompletionToolParam
	// Executor runs approved tool invocations. A nil executor reports every
	// invocation as failed.
	Executor ToolExecutor
}

// Runtime wraps the OpenAI Chat Completions API behind the runtime.Runtime interface.
type Runtime struct {
	opts Options
}

// New creates a new OpenAI runtime adapter using the official client.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
		MaxTurns:            8,
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

func (r *Runtime) newClient(req runtime.Request) openai.Client {
	var clientOpts []option.RequestOption
	if req.Policy.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(req.Policy.APIKey))
	}
	if req.Policy.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(req.Policy.BaseURL))
	}
	return openai.NewClient(clientOpts...)
}

func (r *Runtime) run(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
	client := r.newClient(req)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               r.opts.Model,
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
	}
	if req.Policy.Model != "" {
		params.Model = req.Policy.Model
	}
	if req.Policy.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Policy.MaxTokens))
	}
	if tools := filterTools(r.opts.Tools, req.Policy.AllowedTools); len(tools) > 0 {
		params.Tools = tools
	}

	maxTurns := r.opts.MaxTurns
	if req.Policy.MaxTurns > 0 {
		maxTurns = req.Policy.MaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		params.Messages = messages

		calls, finishReason, err := r.streamTurn(ctx, &client, params, emit)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			emit(runtime.ResultSummary{StopReason: finishReason, Subtype: "success"})
			return nil
		}

		toolCallParams := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
		for i, c := range calls {
			toolCallParams[i] = openai.ChatCompletionMessageToolCallParam{
				ID:   c.id,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      c.name,
					Arguments: c.args,
				},
			}
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCallParams},
		})

		for _, c := range calls {
			output, isError, err := r.invokeTool(ctx, req, c.name, c.args)
			if err != nil {
				return err
			}
			emit(runtime.ToolResult{ID: c.id, Name: c.name, Output: output, IsError: isError})
			messages = append(messages, openai.ToolMessage(output, c.id))
		}
	}

	emit(runtime.ResultSummary{StopReason: "max_turns", Subtype: "error_max_turns"})
	return nil
}

// streamTurn runs one streaming model call, forwarding text and tool-call
// fragments as runtime messages. It returns the completed tool calls in
// index order together with the finish reason.
func (r *Runtime) streamTurn(
	ctx context.Context,
	client *openai.Client,
	params openai.ChatCompletionNewParams,
	emit func(runtime.Message) bool,
) ([]*aggCall, string, error) {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	toolAgg := map[int64]*aggCall{}
	var indexOrder []int64
	var finishReason string
	textOpen := false
	currentTool := int64(-1)

	closeTool := func() {
		if currentTool >= 0 {
			emit(runtime.BlockEnd{})
			currentTool = -1
		}
	}

	for stream.Next() {
		ck := stream.Current()
		for _, choice := range ck.Choices {
			if choice.Delta.Content != "" {
				closeTool()
				textOpen = true
				emit(runtime.TextDelta{Text: choice.Delta.Content})
			}
			for _, tc := range choice.Delta.ToolCalls {
				if textOpen {
					emit(runtime.BlockEnd{})
					textOpen = false
				}
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
					indexOrder = append(indexOrder, tc.Index)
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				if tc.Index != currentTool {
					closeTool()
					currentTool = tc.Index
					emit(runtime.ToolUseStart{ID: ac.id, Name: ac.name})
				}
				if tc.Function.Arguments != "" {
					ac.args += tc.Function.Arguments
					emit(runtime.InputDelta{Partial: tc.Function.Arguments})
				}
			}
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
	}
	closeTool()
	if textOpen {
		emit(runtime.BlockEnd{})
	}

	if err := stream.Err(); err != nil {
		return nil, "", fmt.Errorf("openai streaming error: %w", err)
	}

	calls := make([]*aggCall, 0, len(indexOrder))
	for _, idx := range indexOrder {
		calls = append(calls, toolAgg[idx])
	}
	return calls, finishReason, nil
}

// invokeTool runs the veto hook and the approval callback before executing
// the tool. A denied invocation is reported to the model as an error result
// and never executed.
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
func filterTools(tools []openai.ChatCompletionToolParam, allowed []string) []openai.ChatCompletionToolParam {
	if len(allowed) == 0 {
		return tools
	}
	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}
	var out []openai.ChatCompletionToolParam
	for _, t := range tools {
		if keep[t.Function.Name] {
			out = append(out, t)
		}
	}
	return out
}
