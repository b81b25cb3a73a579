// File: internal/delegates/builtin.go
package delegates

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tracepoint/internal/config"
)

// NewDefaultRegistry registers every built-in delegate.
func NewDefaultRegistry(cfg config.DelegatesConfig, logger *zap.Logger) *Registry {
	r := NewRegistry(logger, cfg.Timeout)
	r.Register(
		NewCounselorChat(cfg.CounselorPool),
		NewDocumentAgent(),
		NewScholarshipAgent(cfg.Scholarships, time.Now),
		NewPeerMatch(cfg.PeerMentors),
		NewAcademicSupport(),
		NewEscalationAgent(cfg.EscalationContact),
	)
	return r
}

// pick chooses a stable pool member for the individual.
func pick(pool []string, individualID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(individualID))
	return pool[int(h.Sum32()%uint32(len(pool)))]
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intParam accepts both Go ints and JSON-decoded numbers.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// -- Counselor chat --

// CounselorChatAgent opens a chat room with an on-duty counselor.
type CounselorChatAgent struct {
	pool []string
}

func NewCounselorChat(pool []string) *CounselorChatAgent {
	return &CounselorChatAgent{pool: pool}
}

func (c *CounselorChatAgent) Capability() string { return CounselorChat }

func (c *CounselorChatAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.pool) == 0 {
		return &Result{ErrorCode: ErrCodeNoCapacity, Message: "no counselor available"}, nil
	}
	return &Result{Success: true, Data: map[string]any{
		"room_id":   "room-" + uuid.NewString(),
		"counselor": pick(c.pool, req.IndividualID),
		"topic":     stringParam(req.Parameters, "cause", "general check-in"),
		"status":    "invited",
	}}, nil
}

// -- Document assistance --

var documentChecklists = map[string][]string{
	"housing":               {"allotment letter", "fee receipt", "identity proof"},
	"fee_extension_request": {"fee statement", "income certificate", "extension request letter"},
	"general":               {"identity proof", "enrolment certificate"},
}

// DocumentAgent prepares a document request with the paperwork checklist.
type DocumentAgent struct{}

func NewDocumentAgent() *DocumentAgent { return &DocumentAgent{} }

func (d *DocumentAgent) Capability() string { return Document }

func (d *DocumentAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind := stringParam(req.Parameters, "document_type", "general")
	checklist, ok := documentChecklists[kind]
	if !ok {
		return &Result{ErrorCode: ErrCodeInvalidParameters, Message: fmt.Sprintf("unknown document type %q", kind)}, nil
	}
	return &Result{Success: true, Data: map[string]any{
		"document_ref":  "DOC-" + strings.ToUpper(uuid.NewString()[:8]),
		"document_type": kind,
		"checklist":     checklist,
	}}, nil
}

// -- Scholarship and fee handling --

// ScholarshipAgent matches open scholarships from the configured catalogue.
type ScholarshipAgent struct {
	catalogue []config.ScholarshipConfig
	now       func() time.Time
}

func NewScholarshipAgent(catalogue []config.ScholarshipConfig, now func() time.Time) *ScholarshipAgent {
	return &ScholarshipAgent{catalogue: catalogue, now: now}
}

func (s *ScholarshipAgent) Capability() string { return Scholarship }

func (s *ScholarshipAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	var matches []map[string]any
	for _, sc := range s.catalogue {
		if sc.Deadline != "" {
			deadline, err := time.Parse("2006-01-02", sc.Deadline)
			if err != nil || deadline.Before(today) {
				continue
			}
		}
		matches = append(matches, map[string]any{"name": sc.Name, "amount": sc.Amount, "deadline": sc.Deadline})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i]["amount"].(float64) > matches[j]["amount"].(float64)
	})
	if limit := intParam(req.Parameters, "max_results"); limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return &Result{Success: true, Data: map[string]any{
		"matches":     matches,
		"match_count": len(matches),
	}}, nil
}

// -- Peer matching --

// PeerMatchAgent pairs the individual with a peer mentor.
type PeerMatchAgent struct {
	mentors []string
}

func NewPeerMatch(mentors []string) *PeerMatchAgent { return &PeerMatchAgent{mentors: mentors} }

func (p *PeerMatchAgent) Capability() string { return PeerMatch }

func (p *PeerMatchAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.mentors) == 0 {
		return &Result{ErrorCode: ErrCodeNoCapacity, Message: "no peer mentor available"}, nil
	}
	return &Result{Success: true, Data: map[string]any{
		"mentor": pick(p.mentors, req.IndividualID),
		"status": "introduced",
	}}, nil
}

// -- Academic support --

var academicResources = map[string][]string{
	"deadlines":    {"deadline extension request", "study planner session"},
	"attendance":   {"attendance review with advisor", "catch-up notes"},
	"registration": {"registrar desk appointment"},
}

// AcademicSupportAgent recommends academic resources.
type AcademicSupportAgent struct{}

func NewAcademicSupport() *AcademicSupportAgent { return &AcademicSupportAgent{} }

func (a *AcademicSupportAgent) Capability() string { return AcademicSupport }

func (a *AcademicSupportAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	focus := stringParam(req.Parameters, "focus", "deadlines")
	resources, ok := academicResources[focus]
	if !ok {
		resources = []string{"academic advisor appointment"}
	}
	return &Result{Success: true, Data: map[string]any{
		"focus":     focus,
		"resources": resources,
	}}, nil
}

// -- Escalation --

// EscalationAgent hands the case to the configured welfare contact.
type EscalationAgent struct {
	contact string
}

func NewEscalationAgent(contact string) *EscalationAgent { return &EscalationAgent{contact: contact} }

func (e *EscalationAgent) Capability() string { return Escalation }

func (e *EscalationAgent) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.contact == "" {
		return &Result{ErrorCode: ErrCodeInvalidParameters, Message: "no escalation contact configured"}, nil
	}
	return &Result{Success: true, Data: map[string]any{
		"escalated_to": e.contact,
		"ticket":       "ESC-" + strings.ToUpper(uuid.NewString()[:8]),
		"reason":       stringParam(req.Parameters, "reason", "no response to outreach"),
	}}, nil
}
