package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/guard"
	"github.com/hupe1980/agentgate/internal/util"
	"github.com/hupe1980/agentgate/runtime"
)

// Run executes one conversation turn against the runtime and blocks until it
// settles. It never returns an error: runtime failures surface as an
// ErrorChunk, cancellation as Aborted on the result. Starting a run for a
// conversation that already has one cancels the previous run first.
func (o *Orchestrator) Run(
	ctx context.Context,
	history []core.Message,
	systemPrompt string,
	policy core.PolicySettings,
	conversationID string,
) core.Result {
	if conversationID == "" {
		conversationID = UnscopedConversationID
	}

	rc, runCtx := o.startRun(ctx, conversationID)
	restore := applyCredentialOverride(policy)
	defer func() {
		// Always executed: identity-checked deregistration, synthetic deny
		// for decisions this run left pending, credential restoration.
		o.finishRun(rc)
		restore()
	}()

	req := runtime.Request{
		Prompt:       util.FlattenHistory(history),
		SystemPrompt: systemPrompt,
		Policy:       policy,
	}
	if policy.RestrictToWorkingDir && policy.WorkingDir != "" {
		req.Hook = guard.BuildRestrictionHook(policy.WorkingDir, policy.ExtraWritableDirs)
	}
	req.CanUseTool = func(cctx context.Context, toolName, input string) (core.ToolDecision, error) {
		return o.decideToolUse(cctx, rc, policy, toolName, input)
	}

	o.logger.Info("run started", "conversation_id", conversationID, "run_id", rc.runID, "permission_mode", string(policy.PermissionMode))

	msgCh, errCh := o.rt.Submit(runCtx, req)

	acc := newAccumulator(o.outputLimit)
	var text strings.Builder
	var stopReason, subtype string
	mcpReported := false

	for msg := range msgCh {
		switch m := msg.(type) {
		case runtime.TextDelta:
			text.WriteString(m.Text)
			rc.emit(core.TextChunk{Content: m.Text})

		case runtime.ToolUseStart:
			acc.start(m.ID, m.Name, rc.emit)

		case runtime.InputDelta:
			acc.appendInput(m.Partial)

		case runtime.BlockEnd:
			acc.endBlock(rc.emit)

		case runtime.ToolResult:
			acc.result(m.ID, m.Name, m.Output, rc.emit)

		case runtime.ResultSummary:
			// Last write wins; not every sequence carries one.
			if m.StopReason != "" {
				stopReason = m.StopReason
			}
			if m.Subtype != "" {
				subtype = m.Subtype
			}

		case runtime.SystemInit:
			if mcpReported || len(m.Servers) == 0 {
				continue
			}
			mcpReported = true
			rc.emit(core.MCPStatusChunk{Servers: m.Servers})
			for _, s := range m.Servers {
				if !s.Connected() {
					o.logger.Warn("mcp server not connected", "server", s.Name, "status", s.Status)
				}
			}
		}
	}

	result := core.Result{
		Content:   text.String(),
		ToolCalls: acc.finalRecords(),
	}

	err := <-errCh
	switch {
	case err != nil && !isCancellation(err) && runCtx.Err() == nil:
		o.logger.Error("run failed", "conversation_id", conversationID, "run_id", rc.runID, "error", err.Error())
		rc.emit(core.ErrorChunk{Message: sanitizeError(err)})
	case err != nil || runCtx.Err() != nil:
		result.Aborted = true
		rc.emit(core.DoneChunk{StopReason: "aborted"})
	default:
		rc.emit(core.DoneChunk{StopReason: stopReason, Subtype: subtype})
	}

	o.logger.Info("run finished", "conversation_id", conversationID, "run_id", rc.runID, "aborted", result.Aborted, "tool_calls", len(result.ToolCalls))

	return result
}

// isCancellation classifies an error from the runtime sequence as a graceful
// stop rather than a failure, by identity or by abort signature in the text.
func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "abort") || strings.Contains(msg, "cancel")
}

// pathPattern matches multi-segment absolute paths so error text shown to the
// UI never leaks internal filesystem layout.
var pathPattern = regexp.MustCompile(`(?:/[\w.@+~-]+){2,}`)

func sanitizeError(err error) string {
	return pathPattern.ReplaceAllString(err.Error(), "[path]")
}
