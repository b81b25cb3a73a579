// File: internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

// Memory is an in-process schemas.Store for tests and database-less runs.
// Records are stored by value; callers get copies.
type Memory struct {
	mu           sync.RWMutex
	events       map[string][]schemas.Event
	decisions    map[string][]schemas.Decision
	observations map[string]schemas.Observation
	sessions     map[string]schemas.AgentSession
	plans        map[string]schemas.InterventionPlan
	actions      map[string]schemas.Action
	outcomes     map[string]schemas.Outcome
}

var _ schemas.Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		events:       make(map[string][]schemas.Event),
		decisions:    make(map[string][]schemas.Decision),
		observations: make(map[string]schemas.Observation),
		sessions:     make(map[string]schemas.AgentSession),
		plans:        make(map[string]schemas.InterventionPlan),
		actions:      make(map[string]schemas.Action),
		outcomes:     make(map[string]schemas.Outcome),
	}
}

// AddEvents appends events, keeping each individual's history time-ordered.
func (m *Memory) AddEvents(events ...schemas.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	touched := map[string]bool{}
	for _, e := range events {
		m.events[e.IndividualID] = append(m.events[e.IndividualID], e)
		touched[e.IndividualID] = true
	}
	for id := range touched {
		evs := m.events[id]
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
	}
}

func (m *Memory) Events(_ context.Context, individualID string, since time.Time) ([]schemas.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schemas.Event
	for _, e := range m.events[individualID] {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Individuals lists every individual with at least one event, sorted.
func (m *Memory) Individuals(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) SaveDecision(_ context.Context, d *schemas.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d.IndividualID] = append(m.decisions[d.IndividualID], *d)
	return nil
}

func (m *Memory) RecentDecisions(_ context.Context, individualID string, limit int) ([]schemas.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.decisions[individualID]
	out := make([]schemas.Decision, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) SaveObservation(_ context.Context, o *schemas.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Decision = nil
	m.observations[o.ID] = cp
	return nil
}

// Observation returns a saved observation.
func (m *Memory) Observation(id string) (*schemas.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.observations[id]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return &o, nil
}

func (m *Memory) SaveSession(_ context.Context, s *schemas.AgentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (*schemas.AgentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return &s, nil
}

func (m *Memory) ActiveSession(_ context.Context, individualID string) (*schemas.AgentSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *schemas.AgentSession
	for _, s := range m.sessions {
		if s.IndividualID != individualID || s.Status.IsTerminal() {
			continue
		}
		if found == nil || s.StartedAt.After(found.StartedAt) {
			cp := s
			found = &cp
		}
	}
	if found == nil {
		return nil, schemas.ErrNotFound
	}
	return found, nil
}

func (m *Memory) SavePlan(_ context.Context, p *schemas.InterventionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = *p
	return nil
}

func (m *Memory) GetPlan(_ context.Context, id string) (*schemas.InterventionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) PlanForSession(_ context.Context, sessionID string) (*schemas.InterventionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *schemas.InterventionPlan
	for _, p := range m.plans {
		if p.SessionID != sessionID {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			cp := p
			found = &cp
		}
	}
	if found == nil {
		return nil, schemas.ErrNotFound
	}
	return found, nil
}

func (m *Memory) SaveActions(_ context.Context, actions []schemas.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range actions {
		a.DependsOn = append([]string(nil), a.DependsOn...)
		m.actions[a.ID] = a
	}
	return nil
}

func (m *Memory) ActionsForPlan(_ context.Context, planID string) ([]schemas.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schemas.Action
	for _, a := range m.actions {
		if a.PlanID == planID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out, nil
}

func (m *Memory) SaveOutcome(_ context.Context, o *schemas.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[o.ID] = *o
	return nil
}

func (m *Memory) GetOutcome(_ context.Context, id string) (*schemas.Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outcomes[id]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return &o, nil
}
