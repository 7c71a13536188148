package orchestrator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/agentgate/core"
)

// accumulator reconstructs structured tool-call records from the runtime's
// fragmented delta events for one run. The runtime streams tool-call input as
// raw text fragments that must be concatenated before they parse as a whole;
// the accumulator owns that reassembly plus the stub-record guarantee: a
// record exists from the moment an invocation starts streaming, even if its
// output never arrives.
//
// The ask-user tool is excluded from this pipeline entirely; its block
// boundaries are tracked only to keep the current-block bookkeeping honest.
type accumulator struct {
	limit int

	current    string // id of the tool block being streamed, "" for text
	inputs     map[string]*strings.Builder
	records    map[string]*core.ToolCallRecord
	order      []string
	suppressed map[string]bool
}

func newAccumulator(limit int) *accumulator {
	return &accumulator{
		limit:      limit,
		inputs:     make(map[string]*strings.Builder),
		records:    make(map[string]*core.ToolCallRecord),
		suppressed: make(map[string]bool),
	}
}

// start opens a tool invocation block, synthesizing an id when the runtime
// did not supply one, and emits the stub's tool_start chunk.
func (a *accumulator) start(id, name string, emit func(core.Chunk)) {
	if id == "" {
		id = uuid.NewString()
	}
	a.current = id

	if name == ToolAskUser {
		a.suppressed[id] = true
		return
	}

	a.records[id] = &core.ToolCallRecord{ID: id, Name: name, Status: core.ToolCallRunning}
	a.inputs[id] = &strings.Builder{}
	a.order = append(a.order, id)

	emit(core.ToolStartChunk{ID: id, Name: name})
}

// appendInput concatenates a raw input fragment onto the block in progress.
func (a *accumulator) appendInput(fragment string) {
	if a.current == "" || a.suppressed[a.current] {
		return
	}
	if b, ok := a.inputs[a.current]; ok {
		b.WriteString(fragment)
	}
}

// endBlock finalizes the tool block in progress: the accumulated fragments
// become the record's input, parsed as one unit downstream. Text blocks and
// suppressed blocks end silently.
func (a *accumulator) endBlock(emit func(core.Chunk)) {
	id := a.current
	a.current = ""
	if id == "" || a.suppressed[id] {
		return
	}

	rec := a.records[id]
	if rec == nil {
		return
	}
	if b, ok := a.inputs[id]; ok {
		rec.Input = b.String()
		delete(a.inputs, id)
	}

	emit(core.ToolInputChunk{ID: id, Name: rec.Name, Input: rec.Input})
}

// result merges a tool outcome into its record, truncating output to the
// configured bound, and emits the tool_result chunk. Results for unknown ids
// create a record on the spot so late outcomes are never dropped; results
// for the suppressed ask-user tool are ignored.
func (a *accumulator) result(id, name, output string, emit func(core.Chunk)) {
	if a.suppressed[id] {
		return
	}

	rec, ok := a.records[id]
	if !ok {
		rec = &core.ToolCallRecord{ID: id, Name: name}
		a.records[id] = rec
		a.order = append(a.order, id)
	}
	if rec.Name == "" {
		rec.Name = name
	}
	rec.Output = core.Truncate(output, a.limit)
	rec.Status = core.ToolCallDone

	emit(core.ToolResultChunk{ID: id, Name: rec.Name, Input: rec.Input, Output: rec.Output})
}

// finalRecords returns the reconstructed records in stream order.
func (a *accumulator) finalRecords() []core.ToolCallRecord {
	records := make([]core.ToolCallRecord, 0, len(a.order))
	for _, id := range a.order {
		records = append(records, *a.records[id])
	}
	return records
}
