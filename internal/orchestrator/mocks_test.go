// File: internal/orchestrator/mocks_test.go
package orchestrator

import (
	"context"
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/delegates"
)

// MockDecider is a mock implementation of the Decider interface.
type MockDecider struct {
	mock.Mock
}

func (m *MockDecider) Decide(ctx context.Context, individualID string, events []schemas.Event, evalCtx schemas.Context) (schemas.Decision, error) {
	args := m.Called(ctx, individualID, events, evalCtx)
	return args.Get(0).(schemas.Decision), args.Error(1)
}

// funcDelegate adapts a function into a delegates.Delegate.
type funcDelegate struct {
	capability string
	fn         func(ctx context.Context, req delegates.Request) (*delegates.Result, error)
}

func (d funcDelegate) Capability() string { return d.capability }

func (d funcDelegate) Execute(ctx context.Context, req delegates.Request) (*delegates.Result, error) {
	return d.fn(ctx, req)
}

// callLog records delegate invocations in arrival order.
type callLog struct {
	mu    sync.Mutex
	calls []delegates.Request
	trace []string
}

func (c *callLog) record(req delegates.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
}

func (c *callLog) mark(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = append(c.trace, entry)
}

func (c *callLog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *callLog) types() []schemas.ActionType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schemas.ActionType, len(c.calls))
	for i, r := range c.calls {
		out[i] = r.Type
	}
	return out
}

func (c *callLog) entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.trace...)
}

// succeeding returns a delegate that always succeeds and logs its calls.
func succeeding(capability string, log *callLog) funcDelegate {
	return funcDelegate{capability: capability, fn: func(_ context.Context, req delegates.Request) (*delegates.Result, error) {
		log.record(req)
		return &delegates.Result{Success: true, Data: map[string]any{"capability": capability}}, nil
	}}
}

// failing returns a delegate that always reports an explicit failure.
func failing(capability string, code delegates.ErrorCode, log *callLog) funcDelegate {
	return funcDelegate{capability: capability, fn: func(_ context.Context, req delegates.Request) (*delegates.Result, error) {
		log.record(req)
		return &delegates.Result{ErrorCode: code, Message: "downstream unavailable"}, nil
	}}
}

// stubTracker answers every response check the same way.
type stubTracker struct {
	responded bool
	err       error

	mu sync.Mutex
	n  int
}

func (s *stubTracker) Responded(context.Context, *schemas.AgentSession, []schemas.Action) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.responded, s.err
}

func (s *stubTracker) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func sortedTypes(types []schemas.ActionType) []schemas.ActionType {
	out := slices.Clone(types)
	slices.Sort(out)
	return out
}
