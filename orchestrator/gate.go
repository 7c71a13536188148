package orchestrator

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/agentgate/core"
)

// Tool names with special approval treatment.
const (
	// ToolAskUser solicits free-form answers from the human. It is always
	// routed interactively regardless of permission mode and never surfaces
	// as an ordinary tool chunk.
	ToolAskUser = "AskUserQuestion"
	// ToolSkill invokes a named skill; disabled skills are vetoed even in
	// bypass mode.
	ToolSkill = "Skill"
)

// decideToolUse is the approval gate: it resolves one tool invocation request
// into a structured allow/deny decision, suspending the run while a human
// decides. Chunks produced elsewhere during the suspension are buffered and
// replayed once every pending decision for the run completed.
func (o *Orchestrator) decideToolUse(
	ctx context.Context,
	rc *runContext,
	policy core.PolicySettings,
	toolName, input string,
) (core.ToolDecision, error) {
	// Ask-user requests bypass permission-mode handling entirely.
	if toolName == ToolAskUser {
		return o.askUser(ctx, rc, input), nil
	}

	// The disabled-skill veto applies even in auto-approve mode.
	if toolName == ToolSkill {
		if skill := gjson.Get(input, "command").String(); skill != "" && policy.SkillDisabled(skill) {
			return core.Deny(fmt.Sprintf("Skill %q is disabled", skill)), nil
		}
	}

	switch policy.PermissionMode {
	case core.PermissionBypass:
		return core.Allow(input), nil
	case core.PermissionDontAsk:
		return core.Deny(fmt.Sprintf("Tool %s requires approval and permission mode is dontAsk", toolName)), nil
	}

	p := o.newPending(rc)
	rc.emit(core.ApprovalChunk{RequestID: p.requestID, ToolName: toolName, Input: input})
	rc.beginDecision()
	defer rc.endDecision()

	resp := o.awaitDecision(ctx, p)
	if resp.Behavior == core.DecisionAllow {
		return core.Allow(input), nil
	}
	message := resp.Message
	if message == "" {
		message = core.DefaultDenyMessage
	}
	return core.Deny(message), nil
}

// askUser surfaces the agent's structured questions to the human and, on
// resolution, allows the invocation with the answers merged into the
// original input.
func (o *Orchestrator) askUser(ctx context.Context, rc *runContext, input string) core.ToolDecision {
	questions := input
	if q := gjson.Get(input, "questions"); q.Exists() {
		questions = q.Raw
	}

	p := o.newPending(rc)
	rc.emit(core.AskUserChunk{RequestID: p.requestID, Questions: questions})
	rc.beginDecision()
	defer rc.endDecision()

	resp := o.awaitDecision(ctx, p)
	if resp.Behavior == core.DecisionDeny {
		message := resp.Message
		if message == "" {
			message = core.DefaultDenyMessage
		}
		return core.Deny(message)
	}

	merged := input
	if resp.Answers != "" {
		if m, err := sjson.SetRaw(input, "answers", resp.Answers); err == nil {
			merged = m
		}
	}
	return core.Allow(merged)
}
