package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/runtime"
)

// UnscopedConversationID is the registry key used when a caller starts a run
// without a conversation id.
const UnscopedConversationID = "__unscoped__"

// Sink receives normalized chunks for one or more runs. Sinks registered on
// an orchestrator form a fan-out; a sink that panics (e.g. because its
// underlying observer closed) is skipped, never an error.
type Sink func(chunk core.Chunk)

// Options configures an Orchestrator instance.
type Options struct {
	// Logger receives structured diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger

	// OutputLimit bounds retained tool output characters per record.
	// Defaults to core.DefaultOutputLimit.
	OutputLimit int
}

// Orchestrator coordinates runs against one agent runtime. All methods are
// safe for concurrent use; mutations of the run registry and the pending
// decision table are guarded by a single mutex and every deregistration is
// identity-checked so a superseded run can never tear down its successor.
type Orchestrator struct {
	rt          runtime.Runtime
	logger      logging.Logger
	outputLimit int

	mu      sync.Mutex
	runs    map[string]*runContext
	pending map[string]*pendingDecision
	sinks   map[int]Sink
	sinkSeq int
}

// New creates an Orchestrator driving the given runtime.
func New(rt runtime.Runtime, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		OutputLimit: core.DefaultOutputLimit,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		rt:          rt,
		logger:      opts.Logger,
		outputLimit: opts.OutputLimit,
		runs:        make(map[string]*runContext),
		pending:     make(map[string]*pendingDecision),
		sinks:       make(map[int]Sink),
	}
}

// RegisterSink adds an observer for all chunks produced by this orchestrator
// and returns its unregister function.
func (o *Orchestrator) RegisterSink(s Sink) func() {
	o.mu.Lock()
	id := o.sinkSeq
	o.sinkSeq++
	o.sinks[id] = s
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.sinks, id)
		o.mu.Unlock()
	}
}

// deliver fans a chunk out to every registered sink. Sinks observing a closed
// window may panic; delivery to such an observer is a no-op.
func (o *Orchestrator) deliver(chunk core.Chunk) {
	o.mu.Lock()
	snapshot := make([]Sink, 0, len(o.sinks))
	for _, s := range o.sinks {
		snapshot = append(snapshot, s)
	}
	o.mu.Unlock()

	for _, s := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Debug("sink delivery skipped", "reason", r)
				}
			}()
			s(chunk)
		}()
	}
}

// Resolve satisfies a pending approval or ask-user request. Unknown request
// ids are silently ignored: the caller may race a cancellation that already
// resolved the decision.
func (o *Orchestrator) Resolve(requestID string, resp core.DecisionResponse) {
	o.mu.Lock()
	p, ok := o.pending[requestID]
	if ok {
		delete(o.pending, requestID)
	}
	o.mu.Unlock()

	if ok {
		p.resolve(resp)
	}
}

// Cancel stops the active run for one conversation, resolving its pending
// decisions with a synthetic deny. Cancelling an unknown or already finished
// conversation is a no-op.
func (o *Orchestrator) Cancel(conversationID string) {
	if conversationID == "" {
		conversationID = UnscopedConversationID
	}

	o.mu.Lock()
	rc := o.runs[conversationID]
	if rc != nil {
		delete(o.runs, conversationID)
	}
	toResolve := o.detachPendingLocked(rc)
	o.mu.Unlock()

	if rc == nil {
		return
	}
	rc.cancel()
	resolveAllCancelled(toResolve)
	o.logger.Info("run cancelled", "conversation_id", conversationID, "run_id", rc.runID)
}

// CancelAll stops every active run.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	var rcs []*runContext
	var toResolve []*pendingDecision
	for id, rc := range o.runs {
		delete(o.runs, id)
		rcs = append(rcs, rc)
		toResolve = append(toResolve, o.detachPendingLocked(rc)...)
	}
	o.mu.Unlock()

	for _, rc := range rcs {
		rc.cancel()
	}
	resolveAllCancelled(toResolve)
}

// startRun registers a fresh run for conversationID, cancelling and evicting
// any run already registered under that id before the new one starts.
func (o *Orchestrator) startRun(ctx context.Context, conversationID string) (*runContext, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	rc := &runContext{
		conversationID: conversationID,
		runID:          uuid.NewString(),
		cancel:         cancel,
		o:              o,
	}

	o.mu.Lock()
	prev := o.runs[conversationID]
	o.runs[conversationID] = rc
	toResolve := o.detachPendingLocked(prev)
	o.mu.Unlock()

	if prev != nil {
		prev.cancel()
		resolveAllCancelled(toResolve)
		o.logger.Info("run superseded", "conversation_id", conversationID, "old_run_id", prev.runID, "new_run_id", rc.runID)
	}

	return rc, runCtx
}

// finishRun deregisters rc if it is still the active run for its conversation
// (a newer run may have replaced it) and resolves any decisions it left
// pending with a synthetic deny.
func (o *Orchestrator) finishRun(rc *runContext) {
	o.mu.Lock()
	if o.runs[rc.conversationID] == rc {
		delete(o.runs, rc.conversationID)
	}
	toResolve := o.detachPendingLocked(rc)
	o.mu.Unlock()

	resolveAllCancelled(toResolve)
}

// detachPendingLocked removes and returns every pending decision owned by rc.
// Callers must hold o.mu. A nil rc yields nil.
func (o *Orchestrator) detachPendingLocked(rc *runContext) []*pendingDecision {
	if rc == nil {
		return nil
	}
	var detached []*pendingDecision
	for id, p := range o.pending {
		if p.owner == rc {
			delete(o.pending, id)
			detached = append(detached, p)
		}
	}
	return detached
}

// newPending registers a pending decision owned by rc and returns it.
func (o *Orchestrator) newPending(rc *runContext) *pendingDecision {
	p := &pendingDecision{
		requestID: uuid.NewString(),
		owner:     rc,
		respCh:    make(chan core.DecisionResponse, 1),
	}
	o.mu.Lock()
	o.pending[p.requestID] = p
	o.mu.Unlock()
	return p
}

// awaitDecision blocks until the pending decision resolves or the run is
// cancelled. Cancellation yields a synthetic deny, never an unresolved wait.
func (o *Orchestrator) awaitDecision(ctx context.Context, p *pendingDecision) core.DecisionResponse {
	select {
	case resp := <-p.respCh:
		return resp
	case <-ctx.Done():
		o.mu.Lock()
		delete(o.pending, p.requestID)
		o.mu.Unlock()
		return core.DecisionResponse{Behavior: core.DecisionDeny, Message: cancelledMessage}
	}
}

// cancelledMessage is the synthetic deny reason used whenever a pending
// decision is resolved by cancellation rather than by the human.
const cancelledMessage = "Request cancelled"

// pendingDecision correlates an emitted approval/ask-user chunk with its
// eventual external resolution. The resolver fires exactly once; later
// resolutions (races between UI responses and cancellation) are no-ops.
type pendingDecision struct {
	requestID string
	owner     *runContext
	once      sync.Once
	respCh    chan core.DecisionResponse
}

func (p *pendingDecision) resolve(resp core.DecisionResponse) {
	p.once.Do(func() { p.respCh <- resp })
}

func resolveAllCancelled(pendings []*pendingDecision) {
	for _, p := range pendings {
		p.resolve(core.DecisionResponse{Behavior: core.DecisionDeny, Message: cancelledMessage})
	}
}

// runContext tracks one active run: its cancellation handle, the count of
// in-flight interactive decisions and the ordered buffer of chunks withheld
// while any decision is pending.
type runContext struct {
	conversationID string
	runID          string
	cancel         context.CancelFunc
	o              *Orchestrator

	mu           sync.Mutex
	pendingCount int
	buffer       []core.Chunk
}

// emit delivers a chunk to the sinks, or buffers it while an interactive
// decision is pending for this run. Buffered chunks replay in FIFO order once
// the pending count returns to zero; no reordering is ever applied.
func (rc *runContext) emit(chunk core.Chunk) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.pendingCount > 0 {
		rc.buffer = append(rc.buffer, chunk)
		return
	}
	rc.o.deliver(chunk)
}

// beginDecision opens a suspension window.
func (rc *runContext) beginDecision() {
	rc.mu.Lock()
	rc.pendingCount++
	rc.mu.Unlock()
}

// endDecision closes one suspension window and, when the last one closes,
// flushes the withheld chunks in arrival order.
func (rc *runContext) endDecision() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.pendingCount--
	if rc.pendingCount > 0 {
		return
	}
	for _, chunk := range rc.buffer {
		rc.o.deliver(chunk)
	}
	rc.buffer = nil
}
