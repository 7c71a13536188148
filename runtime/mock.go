package runtime

import "context"

// MockRuntime is a lightweight in-memory Runtime useful for tests & examples.
// A custom RunFn scripts arbitrary message sequences including tool
// permission callbacks; NewMockRuntime provides a canned text completion.
type MockRuntime struct {
	// RunFn drives one submission. emit delivers a message and reports false
	// once ctx is cancelled; returning an error surfaces it on the error
	// channel as a terminal failure.
	RunFn func(ctx context.Context, req Request, emit func(Message) bool) error
}

// NewMockRuntime constructs a mock that streams text as a single delta and
// completes with an end_turn summary.
func NewMockRuntime(text string) *MockRuntime {
	return &MockRuntime{
		RunFn: func(ctx context.Context, req Request, emit func(Message) bool) error {
			if !emit(TextDelta{Text: text}) {
				return ctx.Err()
			}
			if !emit(BlockEnd{}) {
				return ctx.Err()
			}
			emit(ResultSummary{StopReason: "end_turn", Subtype: "success"})
			return nil
		},
	}
}

// Submit implements Runtime.
func (m *MockRuntime) Submit(ctx context.Context, req Request) (<-chan Message, <-chan error) {
	msgCh := make(chan Message, 16)
	errCh := make(chan error, 1)

	emit := func(msg Message) bool {
		// Cancellation wins over a ready buffered send.
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

		if m.RunFn == nil {
			return
		}
		if err := m.RunFn(ctx, req, emit); err != nil {
			errCh <- err
		}
	}()

	return msgCh, errCh
}
