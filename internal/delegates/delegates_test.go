// File: internal/delegates/delegates_test.go
package delegates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
)

type funcDelegate struct {
	id string
	fn func(ctx context.Context, req Request) (*Result, error)
}

func (f funcDelegate) Capability() string { return f.id }
func (f funcDelegate) Execute(ctx context.Context, req Request) (*Result, error) {
	return f.fn(ctx, req)
}

func TestRegistryExecute(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRegistry(zap.New(core), 50*time.Millisecond)
	r.Register(
		funcDelegate{"ok", func(context.Context, Request) (*Result, error) {
			return &Result{Success: true, Data: map[string]any{"x": 1}}, nil
		}},
		funcDelegate{"refuses", func(context.Context, Request) (*Result, error) {
			return &Result{ErrorCode: ErrCodeNoCapacity, Message: "busy"}, nil
		}},
		funcDelegate{"errors", func(context.Context, Request) (*Result, error) {
			return nil, errors.New("boom")
		}},
		funcDelegate{"panics", func(context.Context, Request) (*Result, error) {
			panic("kaboom")
		}},
		funcDelegate{"slow", func(ctx context.Context, _ Request) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		funcDelegate{"nil", func(context.Context, Request) (*Result, error) { return nil, nil }},
	)

	res, err := r.Execute(context.Background(), "ok", Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Data["x"])

	_, err = r.Execute(context.Background(), "refuses", Request{})
	assert.Equal(t, ErrCodeNoCapacity, CodeOf(err))
	assert.ErrorContains(t, err, "busy")

	_, err = r.Execute(context.Background(), "errors", Request{})
	assert.Equal(t, ErrCodeExecutionFailure, CodeOf(err))

	_, err = r.Execute(context.Background(), "panics", Request{ActionID: "a1"})
	assert.Equal(t, ErrCodeDelegatePanic, CodeOf(err))
	assert.Equal(t, 1, logs.FilterMessage("Delegate panicked.").Len())

	_, err = r.Execute(context.Background(), "slow", Request{})
	assert.Equal(t, ErrCodeTimeout, CodeOf(err))

	_, err = r.Execute(context.Background(), "nil", Request{})
	assert.Equal(t, ErrCodeExecutionFailure, CodeOf(err))

	_, err = r.Execute(context.Background(), "missing", Request{})
	assert.ErrorIs(t, err, ErrUnknownDelegate)
	assert.Equal(t, ErrCodeUnknownDelegate, CodeOf(err))
}

func TestDefaultRegistry(t *testing.T) {
	cfg := config.NewDefaultConfig().DelegatesCfg
	r := NewDefaultRegistry(cfg, zap.NewNop())
	assert.Equal(t, []string{AcademicSupport, CounselorChat, Document, Escalation, PeerMatch, Scholarship}, r.Capabilities())
	assert.True(t, r.Has(Escalation))

	res, err := r.Execute(context.Background(), CounselorChat, Request{IndividualID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, "counselor-on-duty", res.Data["counselor"])
	assert.Contains(t, res.Data["room_id"], "room-")

	res, err = r.Execute(context.Background(), Escalation, Request{})
	require.NoError(t, err)
	assert.Equal(t, "student-welfare-office", res.Data["escalated_to"])

	// The default configuration has no peer mentors.
	_, err = r.Execute(context.Background(), PeerMatch, Request{IndividualID: "stu-1"})
	assert.Equal(t, ErrCodeNoCapacity, CodeOf(err))
}

func TestPickIsStable(t *testing.T) {
	pool := []string{"a", "b", "c"}
	assert.Equal(t, pick(pool, "stu-42"), pick(pool, "stu-42"))
	assert.Contains(t, pool, pick(pool, "stu-7"))
}

func TestDocumentAgent(t *testing.T) {
	d := NewDocumentAgent()
	res, err := d.Execute(context.Background(), Request{Parameters: map[string]any{"document_type": "housing"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, documentChecklists["housing"], res.Data["checklist"])

	res, err = d.Execute(context.Background(), Request{Parameters: map[string]any{"document_type": "visa"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeInvalidParameters, res.ErrorCode)
}

func TestScholarshipAgent(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC) }
	s := NewScholarshipAgent([]config.ScholarshipConfig{
		{Name: "Merit", Amount: 500, Deadline: "2026-06-01"},
		{Name: "Expired", Amount: 900, Deadline: "2026-05-01"},
		{Name: "Rolling", Amount: 1200},
		{Name: "Today", Amount: 100, Deadline: "2026-05-10"},
	}, now)

	res, err := s.Execute(context.Background(), Request{Type: schemas.ActionScholarshipMatch})
	require.NoError(t, err)
	matches := res.Data["matches"].([]map[string]any)
	require.Len(t, matches, 3)
	assert.Equal(t, "Rolling", matches[0]["name"])
	assert.Equal(t, "Today", matches[2]["name"])

	res, err = s.Execute(context.Background(), Request{Parameters: map[string]any{"max_results": 2}})
	require.NoError(t, err)
	assert.Len(t, res.Data["matches"], 2)
}

func TestDelegatesHonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, d := range []Delegate{
		NewCounselorChat([]string{"x"}), NewDocumentAgent(), NewScholarshipAgent(nil, time.Now),
		NewPeerMatch([]string{"y"}), NewAcademicSupport(), NewEscalationAgent("z"),
	} {
		_, err := d.Execute(ctx, Request{})
		assert.ErrorIs(t, err, context.Canceled, d.Capability())
	}
}

func TestAcademicSupportFallback(t *testing.T) {
	res, err := NewAcademicSupport().Execute(context.Background(), Request{Parameters: map[string]any{"focus": "labs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"academic advisor appointment"}, res.Data["resources"])
}
