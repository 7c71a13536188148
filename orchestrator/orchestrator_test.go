package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/internal/testutil"
	"github.com/hupe1980/agentgate/runtime"
)

func userMessage(content string) []core.Message {
	return []core.Message{{Role: "user", Content: content}}
}

// waitForChunk polls the collector until pred matches a chunk or the deadline
// expires, returning the matching chunk.
func waitForChunk(t *testing.T, c *testutil.ChunkCollector, pred func(core.Chunk) bool) core.Chunk {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ch := range c.Chunks() {
			if pred(ch) {
				return ch
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for chunk")
	return nil
}

func TestRun_TextOnly(t *testing.T) {
	o := New(runtime.NewMockRuntime("Hello"))
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	result := o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{}, "conv-1")

	assert.Equal(t, "Hello", result.Content)
	assert.Empty(t, result.ToolCalls)
	assert.False(t, result.Aborted)

	chunks := collector.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, core.TextChunk{Content: "Hello"}, chunks[0])
	assert.Equal(t, core.DoneChunk{StopReason: "end_turn", Subtype: "success"}, chunks[1])
}

func TestRun_ToolCallReassembly(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			emit(runtime.ToolUseStart{ID: "t1", Name: "Write"})
			emit(runtime.InputDelta{Partial: `{"file_`})
			emit(runtime.InputDelta{Partial: `path":"a.txt"}`})
			emit(runtime.BlockEnd{})
			emit(runtime.ToolResult{ID: "t1", Name: "Write", Output: "ok"})
			emit(runtime.ResultSummary{StopReason: "end_turn", Subtype: "success"})
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	result := o.Run(context.Background(), userMessage("write a file"), "", core.PolicySettings{
		PermissionMode: core.PermissionBypass,
	}, "conv-1")

	require.Len(t, result.ToolCalls, 1)
	record := result.ToolCalls[0]
	assert.Equal(t, "t1", record.ID)
	assert.Equal(t, "Write", record.Name)
	assert.Equal(t, `{"file_path":"a.txt"}`, record.Input)
	assert.Equal(t, "ok", record.Output)
	assert.Equal(t, core.ToolCallDone, record.Status)

	chunks := collector.Chunks()
	require.Len(t, chunks, 4)
	assert.IsType(t, core.ToolStartChunk{}, chunks[0])
	assert.IsType(t, core.ToolInputChunk{}, chunks[1])
	assert.IsType(t, core.ToolResultChunk{}, chunks[2])
	assert.IsType(t, core.DoneChunk{}, chunks[3])
}

func TestRun_BypassAutoApproves(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			d, err := req.CanUseTool(ctx, "Bash", `{"command":"ls"}`)
			if err != nil {
				return err
			}
			decision = d
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)

	o.Run(context.Background(), userMessage("run ls"), "", core.PolicySettings{
		PermissionMode: core.PermissionBypass,
	}, "conv-1")

	assert.True(t, decision.Allowed())
	assert.Equal(t, `{"command":"ls"}`, decision.UpdatedInput)
}

func TestRun_DontAskDeniesWithoutPrompt(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			decision, _ = req.CanUseTool(ctx, "Bash", `{"command":"ls"}`)
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	o.Run(context.Background(), userMessage("run ls"), "", core.PolicySettings{
		PermissionMode: core.PermissionDontAsk,
	}, "conv-1")

	assert.False(t, decision.Allowed())
	assert.NotEmpty(t, decision.Message)
	for _, ch := range collector.Chunks() {
		_, isApproval := ch.(core.ApprovalChunk)
		assert.False(t, isApproval, "dontAsk must not surface approval requests")
	}
}

func TestRun_DisabledSkillVetoedInBypass(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			decision, _ = req.CanUseTool(ctx, ToolSkill, `{"command":"deploy"}`)
			return nil
		},
	}
	o := New(rt)

	o.Run(context.Background(), userMessage("use skill"), "", core.PolicySettings{
		PermissionMode: core.PermissionBypass,
		DisabledSkills: []string{"deploy"},
	}, "conv-1")

	assert.False(t, decision.Allowed())
	assert.Contains(t, decision.Message, "deploy")
	assert.Contains(t, decision.Message, "disabled")
}

func TestRun_InteractiveApprovalAllow(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			decision, _ = req.CanUseTool(ctx, "Bash", `{"command":"ls"}`)
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	done := make(chan core.Result, 1)
	go func() {
		done <- o.Run(context.Background(), userMessage("run ls"), "", core.PolicySettings{}, "conv-1")
	}()

	ch := waitForChunk(t, collector, func(c core.Chunk) bool {
		_, ok := c.(core.ApprovalChunk)
		return ok
	})
	approval := ch.(core.ApprovalChunk)
	assert.Equal(t, "Bash", approval.ToolName)

	o.Resolve(approval.RequestID, core.DecisionResponse{Behavior: core.DecisionAllow})
	<-done

	assert.True(t, decision.Allowed())
}

func TestRun_InteractiveDenyUsesDefaultMessage(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			decision, _ = req.CanUseTool(ctx, "Bash", `{"command":"rm -rf /"}`)
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	done := make(chan core.Result, 1)
	go func() {
		done <- o.Run(context.Background(), userMessage("destroy"), "", core.PolicySettings{}, "conv-1")
	}()

	ch := waitForChunk(t, collector, func(c core.Chunk) bool {
		_, ok := c.(core.ApprovalChunk)
		return ok
	})
	o.Resolve(ch.(core.ApprovalChunk).RequestID, core.DecisionResponse{Behavior: core.DecisionDeny})
	<-done

	assert.False(t, decision.Allowed())
	assert.Equal(t, core.DefaultDenyMessage, decision.Message)
}

func TestRun_SuspensionBuffersChunksUntilResolution(t *testing.T) {
	approvalSeen := make(chan struct{})
	duringEmitted := make(chan struct{})

	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			emit(runtime.TextDelta{Text: "before"})

			decided := make(chan struct{})
			go func() {
				defer close(decided)
				_, _ = req.CanUseTool(ctx, "Bash", `{"command":"ls"}`)
			}()

			<-approvalSeen
			emit(runtime.TextDelta{Text: "during"})
			close(duringEmitted)

			<-decided
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	done := make(chan core.Result, 1)
	go func() {
		done <- o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{}, "conv-1")
	}()

	ch := waitForChunk(t, collector, func(c core.Chunk) bool {
		_, ok := c.(core.ApprovalChunk)
		return ok
	})
	close(approvalSeen)
	<-duringEmitted

	// The chunk emitted during suspension must be withheld from sinks.
	time.Sleep(50 * time.Millisecond)
	for _, c := range collector.Chunks() {
		if tc, ok := c.(core.TextChunk); ok {
			assert.NotEqual(t, "during", tc.Content, "chunk leaked through an open suspension window")
		}
	}

	o.Resolve(ch.(core.ApprovalChunk).RequestID, core.DecisionResponse{Behavior: core.DecisionAllow})
	<-done

	var texts []string
	for _, c := range collector.Chunks() {
		if tc, ok := c.(core.TextChunk); ok {
			texts = append(texts, tc.Content)
		}
	}
	assert.Equal(t, []string{"before", "during"}, texts, "buffered chunks must replay in arrival order")
}

func TestRun_AskUserMergesAnswers(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			decision, _ = req.CanUseTool(ctx, ToolAskUser, `{"questions":[{"question":"Deploy?"}]}`)
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	done := make(chan core.Result, 1)
	go func() {
		// Bypass mode must not shortcut ask-user requests.
		done <- o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{
			PermissionMode: core.PermissionBypass,
		}, "conv-1")
	}()

	ch := waitForChunk(t, collector, func(c core.Chunk) bool {
		_, ok := c.(core.AskUserChunk)
		return ok
	})
	ask := ch.(core.AskUserChunk)
	assert.Equal(t, `[{"question":"Deploy?"}]`, ask.Questions)

	o.Resolve(ask.RequestID, core.DecisionResponse{
		Behavior: core.DecisionAllow,
		Answers:  `[{"answer":"yes"}]`,
	})
	<-done

	require.True(t, decision.Allowed())
	answers := gjson.Get(decision.UpdatedInput, "answers")
	require.True(t, answers.Exists())
	assert.Equal(t, `[{"answer":"yes"}]`, answers.Raw)
	assert.True(t, gjson.Get(decision.UpdatedInput, "questions").Exists(), "original input fields must survive the merge")
}

func TestRun_CancelResolvesPendingAndAborts(t *testing.T) {
	var decision core.ToolDecision
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			decision, _ = req.CanUseTool(ctx, "Bash", `{"command":"sleep 60"}`)
			return ctx.Err()
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	done := make(chan core.Result, 1)
	go func() {
		done <- o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{}, "conv-1")
	}()

	waitForChunk(t, collector, func(c core.Chunk) bool {
		_, ok := c.(core.ApprovalChunk)
		return ok
	})
	o.Cancel("conv-1")
	result := <-done

	assert.True(t, result.Aborted)
	assert.False(t, decision.Allowed())
	assert.Equal(t, "Request cancelled", decision.Message)

	waitForChunk(t, collector, func(c core.Chunk) bool {
		d, ok := c.(core.DoneChunk)
		return ok && d.StopReason == "aborted"
	})
}

func TestRun_SupersedesActiveRunForSameConversation(t *testing.T) {
	firstStarted := make(chan struct{})
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			if req.Prompt == "first" {
				close(firstStarted)
				<-ctx.Done()
				return ctx.Err()
			}
			emit(runtime.TextDelta{Text: "second"})
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)

	first := make(chan core.Result, 1)
	go func() {
		first <- o.Run(context.Background(), userMessage("first"), "", core.PolicySettings{}, "conv-1")
	}()
	<-firstStarted

	second := o.Run(context.Background(), userMessage("second"), "", core.PolicySettings{}, "conv-1")
	firstResult := <-first

	assert.True(t, firstResult.Aborted)
	assert.False(t, second.Aborted)
	assert.Equal(t, "second", second.Content)
}

func TestRun_IndependentConversationsRunConcurrently(t *testing.T) {
	bothStarted := make(chan struct{}, 2)
	release := make(chan struct{})
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			bothStarted <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			emit(runtime.TextDelta{Text: req.Prompt})
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)

	results := make(chan core.Result, 2)
	go func() {
		results <- o.Run(context.Background(), userMessage("a"), "", core.PolicySettings{}, "conv-a")
	}()
	go func() {
		results <- o.Run(context.Background(), userMessage("b"), "", core.PolicySettings{}, "conv-b")
	}()

	<-bothStarted
	<-bothStarted
	close(release)

	r1, r2 := <-results, <-results
	assert.False(t, r1.Aborted)
	assert.False(t, r2.Aborted)
}

func TestRun_RuntimeErrorSurfacesSanitized(t *testing.T) {
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			return errors.New("open /home/user/.secret/config.json: permission denied")
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	result := o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{}, "conv-1")

	assert.False(t, result.Aborted)

	chunks := collector.Chunks()
	require.Len(t, chunks, 1)
	errChunk, ok := chunks[0].(core.ErrorChunk)
	require.True(t, ok)
	assert.Contains(t, errChunk.Message, "[path]")
	assert.NotContains(t, errChunk.Message, "/home/user/.secret")
}

func TestRun_MCPStatusReportedOnce(t *testing.T) {
	servers := []core.ServerStatus{{Name: "docs", Status: "connected"}}
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			emit(runtime.SystemInit{Servers: servers})
			emit(runtime.SystemInit{Servers: servers})
			emit(runtime.ResultSummary{StopReason: "end_turn"})
			return nil
		},
	}
	o := New(rt)
	collector := testutil.NewChunkCollector()
	defer o.RegisterSink(collector.Sink)()

	o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{}, "conv-1")

	statusChunks := collector.OfType(func(c core.Chunk) bool {
		_, ok := c.(core.MCPStatusChunk)
		return ok
	})
	require.Len(t, statusChunks, 1)
	assert.Equal(t, servers, statusChunks[0].(core.MCPStatusChunk).Servers)
}

func TestRun_RestrictionHookWiredFromPolicy(t *testing.T) {
	var hook runtime.PreToolHook
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			hook = req.Hook
			return nil
		},
	}
	o := New(rt)

	o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{
		WorkingDir:           "/home/u/project",
		RestrictToWorkingDir: true,
	}, "conv-1")

	require.NotNil(t, hook)
	d := hook("Write", `{"file_path":"/tmp/evil.txt"}`)
	require.NotNil(t, d)
	assert.False(t, d.Allowed())
	assert.Contains(t, d.Message, "/tmp/evil.txt")
	assert.Contains(t, d.Message, "/home/u/project")
}

func TestRun_NoHookWithoutRestriction(t *testing.T) {
	var hook runtime.PreToolHook
	rt := &runtime.MockRuntime{
		RunFn: func(ctx context.Context, req runtime.Request, emit func(runtime.Message) bool) error {
			hook = req.Hook
			return nil
		},
	}
	o := New(rt)

	o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{
		WorkingDir: "/home/u/project",
	}, "conv-1")

	assert.Nil(t, hook)
}

func TestResolve_UnknownRequestIDIsNoOp(t *testing.T) {
	o := New(runtime.NewMockRuntime("hi"))

	assert.NotPanics(t, func() {
		o.Resolve("nope", core.DecisionResponse{Behavior: core.DecisionAllow})
	})
}

func TestCancel_UnknownConversationIsNoOp(t *testing.T) {
	o := New(runtime.NewMockRuntime("hi"))

	assert.NotPanics(t, func() {
		o.Cancel("nope")
		o.Cancel("")
		o.CancelAll()
	})
}

func TestRegisterSink_UnregisterStopsDelivery(t *testing.T) {
	o := New(runtime.NewMockRuntime("Hello"))
	collector := testutil.NewChunkCollector()
	unregister := o.RegisterSink(collector.Sink)
	unregister()

	o.Run(context.Background(), userMessage("hi"), "", core.PolicySettings{}, "conv-1")

	assert.Empty(t, collector.Chunks())
}

func TestIsCancellation(t *testing.T) {
	assert.True(t, isCancellation(context.Canceled))
	assert.True(t, isCancellation(context.DeadlineExceeded))
	assert.True(t, isCancellation(errors.New("stream aborted by client")))
	assert.True(t, isCancellation(errors.New("request Cancelled")))
	assert.False(t, isCancellation(errors.New("connection refused")))
}

func TestSanitizeError(t *testing.T) {
	err := errors.New("stat /var/lib/agent/data.db failed twice at /etc/agent/conf")
	got := sanitizeError(err)
	assert.NotContains(t, got, "/var/lib/agent")
	assert.NotContains(t, got, "/etc/agent")
	assert.Contains(t, got, "[path]")
}
