// Package agentgate provides a high-level façade over the run orchestration
// core (stream interpretation, tool-call reconstruction, the approval gate and
// the run registry). Most applications interact with this package by:
//  1. Creating an AgentGate via New() around a runtime adapter
//  2. Registering one or more chunk sinks (UI bridges, recorders)
//  3. Starting runs with RunAgent and answering approval requests via Resolve
//
// The façade delegates orchestration to orchestrator.Orchestrator while
// keeping setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// structured logger.
package agentgate

import (
	"context"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/orchestrator"
	"github.com/hupe1980/agentgate/runtime"
)

// Options configures the AgentGate instance.
type Options struct {
	// Logger receives structured diagnostics (defaults to NoOp logger if nil).
	Logger logging.Logger

	// OutputLimit bounds retained tool output characters per tool-call record.
	// Set to 0 to use the default limit.
	OutputLimit int
}

// AgentGate is the high-level façade aggregating the orchestration core and a
// runtime adapter.
type AgentGate struct {
	opts Options
	orch *orchestrator.Orchestrator
}

// New creates a new AgentGate driving the given runtime adapter with optional
// overrides.
func New(rt runtime.Runtime, optFns ...func(o *Options)) *AgentGate {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		OutputLimit: core.DefaultOutputLimit,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	orch := orchestrator.New(rt, func(o *orchestrator.Options) {
		o.Logger = opts.Logger
		o.OutputLimit = opts.OutputLimit
	})

	return &AgentGate{opts: opts, orch: orch}
}

// RegisterSink adds an observer for every chunk produced by this instance and
// returns its unregister function.
func (g *AgentGate) RegisterSink(s orchestrator.Sink) func() {
	return g.orch.RegisterSink(s)
}

// RunAgent executes one conversation turn and blocks until it settles.
// Runtime failures surface as an error chunk on the sinks and cancellation as
// Aborted on the result; the call itself never fails. Starting a run for a
// conversation that already has an active one cancels the previous run first.
func (g *AgentGate) RunAgent(
	ctx context.Context,
	history []core.Message,
	systemPrompt string,
	policy core.PolicySettings,
	conversationID string,
) core.Result {
	return g.orch.Run(ctx, history, systemPrompt, policy, conversationID)
}

// Resolve answers a pending approval or ask-user request. Unknown request ids
// are ignored.
func (g *AgentGate) Resolve(requestID string, resp core.DecisionResponse) {
	g.orch.Resolve(requestID, resp)
}

// Cancel stops the active run for one conversation, if any.
func (g *AgentGate) Cancel(conversationID string) { g.orch.Cancel(conversationID) }

// CancelAll stops every active run.
func (g *AgentGate) CancelAll() { g.orch.CancelAll() }
