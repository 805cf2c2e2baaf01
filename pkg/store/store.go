package store

import "medilink/pkg/domain"

// Store persists triage sessions, turns, analyses, and patient profiles.
// Implementations: GormStore (Postgres) and MemoryStore (tests).
type Store interface {
	// CreateSession inserts a new session. Fails if the id already exists.
	CreateSession(s domain.ChatSession) error
	GetSession(id string) (domain.ChatSession, bool, error)
	ListPatientSessions(patientID string, limit int) ([]domain.ChatSession, error)

	// AppendMessage records a turn. Turns are insert-only; ordering within
	// a session is creation order.
	AppendMessage(msg domain.ChatMessage) error
	// AppendAssistantTurn records an assistant turn and commits the session
	// phase in the same transaction.
	AppendAssistantTurn(msg domain.ChatMessage, phase domain.ConversationPhase) error
	ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error)
	// CountSessionQuestions counts assistant turns with the question type.
	CountSessionQuestions(sessionID string) (int, error)

	// CreateAnalysis inserts the session's analysis record. Returns false
	// without error when a record already exists for the session.
	CreateAnalysis(a domain.MedicalAnalysis) (bool, error)
	GetAnalysisBySession(sessionID string) (domain.MedicalAnalysis, bool, error)

	// Patient profile operations used by the profile service.
	UpsertProfile(p domain.PatientProfile) error
	GetProfile(patientID string) (domain.PatientProfile, bool, error)
	AddScan(s domain.Scan) error
	ListScans(patientID string) ([]domain.Scan, error)
}
