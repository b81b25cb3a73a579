// File: api/schemas/interfaces.go
package schemas

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// EventSource supplies friction events for an individual.
type EventSource interface {
	// Events returns events at or after since, ordered by timestamp ascending.
	// A zero since returns the full history.
	Events(ctx context.Context, individualID string, since time.Time) ([]Event, error)
}

// DecisionStore persists arbiter decisions.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d *Decision) error
	// RecentDecisions returns up to limit decisions, newest first.
	RecentDecisions(ctx context.Context, individualID string, limit int) ([]Decision, error)
}

// InterventionStore persists the orchestration state machine.
type InterventionStore interface {
	SaveObservation(ctx context.Context, o *Observation) error

	SaveSession(ctx context.Context, s *AgentSession) error
	GetSession(ctx context.Context, id string) (*AgentSession, error)
	// ActiveSession returns the individual's non-terminal session or ErrNotFound.
	ActiveSession(ctx context.Context, individualID string) (*AgentSession, error)

	SavePlan(ctx context.Context, p *InterventionPlan) error
	GetPlan(ctx context.Context, id string) (*InterventionPlan, error)
	// PlanForSession returns the most recent plan attached to the session.
	PlanForSession(ctx context.Context, sessionID string) (*InterventionPlan, error)

	// SaveActions upserts actions by ID.
	SaveActions(ctx context.Context, actions []Action) error
	// ActionsForPlan returns the plan's actions ordered by sequence.
	ActionsForPlan(ctx context.Context, planID string) ([]Action, error)

	SaveOutcome(ctx context.Context, o *Outcome) error
	GetOutcome(ctx context.Context, id string) (*Outcome, error)
}

// Store is the full persisted-state boundary.
type Store interface {
	EventSource
	DecisionStore
	InterventionStore
}

// -- LLM Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Short explanations.
	TierPowerful ModelTier = "powerful" // Ethics review and synthesis.
)

// GenerationOptions controls the text generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
