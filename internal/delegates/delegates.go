// File: internal/delegates/delegates.go
package delegates

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

// Capability identifiers for the built-in delegates.
const (
	CounselorChat   = "counselor_chat_agent"
	Document        = "document_agent"
	Scholarship     = "scholarship_agent"
	PeerMatch       = "peer_match_agent"
	AcademicSupport = "academic_support_agent"
	Escalation      = "escalation_agent"
)

// Request is what a delegate receives for one action attempt.
type Request struct {
	ActionID     string
	PlanID       string
	IndividualID string
	Type         schemas.ActionType
	Attempt      int
	Parameters   map[string]any
}

// Result is a delegate's report. A nil error with Success false is an
// explicit failure and is retried like an error.
type Result struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	ErrorCode ErrorCode      `json:"error_code,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Delegate carries out one kind of remedial action.
type Delegate interface {
	Capability() string
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Registry dispatches action attempts to delegates by capability id.
type Registry struct {
	logger    *zap.Logger
	timeout   time.Duration
	mu        sync.RWMutex
	delegates map[string]Delegate
}

// NewRegistry creates an empty registry. A positive timeout bounds every call.
func NewRegistry(logger *zap.Logger, timeout time.Duration) *Registry {
	return &Registry{
		logger:    logger.Named("delegate_registry"),
		timeout:   timeout,
		delegates: make(map[string]Delegate),
	}
}

// Register adds delegates, replacing any with the same capability.
func (r *Registry) Register(ds ...Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		r.delegates[d.Capability()] = d
	}
}

// Has reports whether a delegate serves the capability.
func (r *Registry) Has(capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.delegates[capability]
	return ok
}

// Capabilities lists the registered capability ids, sorted.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.delegates))
	for id := range r.delegates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Execute runs the request on the capability's delegate. Panics are recovered
// into errors coded DELEGATE_PANIC; an explicit unsuccessful result becomes an
// *Error carrying the delegate's code.
func (r *Registry) Execute(ctx context.Context, capability string, req Request) (res *Result, err error) {
	r.mu.RLock()
	d, ok := r.delegates[capability]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDelegate, capability)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Delegate panicked.",
				zap.String("capability", capability),
				zap.String("action_id", req.ActionID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			res = nil
			err = &Error{Code: ErrCodeDelegatePanic, Err: fmt.Errorf("delegate %s panicked: %v", capability, p)}
		}
	}()

	res, err = d.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return res, &Error{Code: ErrCodeTimeout, Err: err}
		}
		return res, err
	}
	if res == nil {
		return nil, &Error{Code: ErrCodeExecutionFailure, Err: fmt.Errorf("delegate %s returned no result", capability)}
	}
	if !res.Success {
		code := res.ErrorCode
		if code == "" {
			code = ErrCodeExecutionFailure
		}
		msg := res.Message
		if msg == "" {
			msg = "delegate reported failure"
		}
		return res, &Error{Code: code, Err: errors.New(msg)}
	}
	return res, nil
}
