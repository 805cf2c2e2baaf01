package store

import (
	"fmt"
	"sort"
	"sync"

	"medilink/pkg/domain"
)

// MemoryStore keeps all records in-process. It mirrors GormStore
// semantics and backs the test suites.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.ChatSession
	messages map[string][]domain.ChatMessage // keyed by session ID, creation order
	analyses map[string]domain.MedicalAnalysis
	profiles map[string]domain.PatientProfile
	scans    map[string][]domain.Scan
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.ChatSession),
		messages: make(map[string][]domain.ChatMessage),
		analyses: make(map[string]domain.MedicalAnalysis),
		profiles: make(map[string]domain.PatientProfile),
		scans:    make(map[string][]domain.Scan),
	}
}

// CreateSession inserts a new session.
func (m *MemoryStore) CreateSession(s domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s
	return nil
}

// GetSession retrieves a session by id.
func (m *MemoryStore) GetSession(id string) (domain.ChatSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

// ListPatientSessions returns a patient's sessions, most recent first.
func (m *MemoryStore) ListPatientSessions(patientID string, limit int) ([]domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatSession, 0)
	for _, s := range m.sessions {
		if s.PatientID == patientID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// AppendMessage records a turn and bumps the session's updated_at.
func (m *MemoryStore) AppendMessage(msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	if s, ok := m.sessions[msg.SessionID]; ok {
		s.UpdatedAt = msg.CreatedAt
		m.sessions[msg.SessionID] = s
	}
	return nil
}

// AppendAssistantTurn records the assistant turn and commits the phase.
func (m *MemoryStore) AppendAssistantTurn(msg domain.ChatMessage, phase domain.ConversationPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	if s, ok := m.sessions[msg.SessionID]; ok {
		s.Phase = phase
		s.UpdatedAt = msg.CreatedAt
		m.sessions[msg.SessionID] = s
	}
	return nil
}

// ListSessionMessages returns turns in creation order; limit keeps the
// most recent ones.
func (m *MemoryStore) ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	res := make([]domain.ChatMessage, len(msgs))
	copy(res, msgs)
	return res, nil
}

// CountSessionQuestions counts assistant turns typed as questions.
func (m *MemoryStore) CountSessionQuestions(sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, msg := range m.messages[sessionID] {
		if msg.Role == domain.RoleAssistant && msg.MessageType == domain.TypeQuestion {
			count++
		}
	}
	return count, nil
}

// CreateAnalysis inserts the analysis record once per session.
func (m *MemoryStore) CreateAnalysis(a domain.MedicalAnalysis) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.analyses[a.SessionID]; exists {
		return false, nil
	}
	m.analyses[a.SessionID] = a
	return true, nil
}

// GetAnalysisBySession retrieves the analysis for a session.
func (m *MemoryStore) GetAnalysisBySession(sessionID string) (domain.MedicalAnalysis, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.analyses[sessionID]
	return a, ok, nil
}

// UpsertProfile creates or updates a patient profile.
func (m *MemoryStore) UpsertProfile(p domain.PatientProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.PatientID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	m.profiles[p.PatientID] = p
	return nil
}

// GetProfile retrieves a patient profile.
func (m *MemoryStore) GetProfile(patientID string) (domain.PatientProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[patientID]
	return p, ok, nil
}

// AddScan records an uploaded prescription scan.
func (m *MemoryStore) AddScan(s domain.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[s.PatientID] = append(m.scans[s.PatientID], s)
	return nil
}

// ListScans returns a patient's scans in upload order.
func (m *MemoryStore) ListScans(patientID string) ([]domain.Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Scan, len(m.scans[patientID]))
	copy(res, m.scans[patientID])
	return res, nil
}
