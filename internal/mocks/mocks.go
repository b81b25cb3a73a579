// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/tracepoint/api/schemas"
	"github.com/xkilldash9x/tracepoint/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) LLM() config.LLMConfig {
	args := m.Called()
	return args.Get(0).(config.LLMConfig)
}

func (m *MockConfig) Reasoning() config.ReasoningConfig {
	args := m.Called()
	return args.Get(0).(config.ReasoningConfig)
}

func (m *MockConfig) Scoring() config.ScoringConfig {
	args := m.Called()
	return args.Get(0).(config.ScoringConfig)
}

func (m *MockConfig) Uncertainty() config.UncertaintyConfig {
	args := m.Called()
	return args.Get(0).(config.UncertaintyConfig)
}

func (m *MockConfig) Arbiter() config.ArbiterConfig {
	args := m.Called()
	return args.Get(0).(config.ArbiterConfig)
}

func (m *MockConfig) Orchestrator() config.OrchestratorConfig {
	args := m.Called()
	return args.Get(0).(config.OrchestratorConfig)
}

func (m *MockConfig) Events() config.EventsConfig {
	args := m.Called()
	return args.Get(0).(config.EventsConfig)
}

func (m *MockConfig) Delegates() config.DelegatesConfig {
	args := m.Called()
	return args.Get(0).(config.DelegatesConfig)
}

// --- Setters ---

func (m *MockConfig) SetEngineWorkerConcurrency(w int) {
	m.Called(w)
}

func (m *MockConfig) SetReasoningBackend(b string) {
	m.Called(b)
}

func (m *MockConfig) SetEventsFile(path string) {
	m.Called(path)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface. Name only helps tell
// instances apart in assertions.
type MockLLMClient struct {
	mock.Mock
	Name string
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Store Mock --

// MockStore mocks schemas.Store plus individual enumeration.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Events(ctx context.Context, individualID string, since time.Time) ([]schemas.Event, error) {
	args := m.Called(ctx, individualID, since)
	events, _ := args.Get(0).([]schemas.Event)
	return events, args.Error(1)
}

func (m *MockStore) Individuals(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockStore) SaveDecision(ctx context.Context, d *schemas.Decision) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockStore) RecentDecisions(ctx context.Context, individualID string, limit int) ([]schemas.Decision, error) {
	args := m.Called(ctx, individualID, limit)
	ds, _ := args.Get(0).([]schemas.Decision)
	return ds, args.Error(1)
}

func (m *MockStore) SaveObservation(ctx context.Context, o *schemas.Observation) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockStore) SaveSession(ctx context.Context, s *schemas.AgentSession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStore) GetSession(ctx context.Context, id string) (*schemas.AgentSession, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*schemas.AgentSession)
	return s, args.Error(1)
}

func (m *MockStore) ActiveSession(ctx context.Context, individualID string) (*schemas.AgentSession, error) {
	args := m.Called(ctx, individualID)
	s, _ := args.Get(0).(*schemas.AgentSession)
	return s, args.Error(1)
}

func (m *MockStore) SavePlan(ctx context.Context, p *schemas.InterventionPlan) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockStore) GetPlan(ctx context.Context, id string) (*schemas.InterventionPlan, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*schemas.InterventionPlan)
	return p, args.Error(1)
}

func (m *MockStore) PlanForSession(ctx context.Context, sessionID string) (*schemas.InterventionPlan, error) {
	args := m.Called(ctx, sessionID)
	p, _ := args.Get(0).(*schemas.InterventionPlan)
	return p, args.Error(1)
}

func (m *MockStore) SaveActions(ctx context.Context, actions []schemas.Action) error {
	return m.Called(ctx, actions).Error(0)
}

func (m *MockStore) ActionsForPlan(ctx context.Context, planID string) ([]schemas.Action, error) {
	args := m.Called(ctx, planID)
	as, _ := args.Get(0).([]schemas.Action)
	return as, args.Error(1)
}

func (m *MockStore) SaveOutcome(ctx context.Context, o *schemas.Outcome) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockStore) GetOutcome(ctx context.Context, id string) (*schemas.Outcome, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*schemas.Outcome)
	return o, args.Error(1)
}
