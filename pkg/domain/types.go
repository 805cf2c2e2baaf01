package domain

import "time"

// ConversationPhase tracks how far a triage conversation has progressed.
// Progression is one-way: initial -> questioning -> analysis.
type ConversationPhase string

const (
	PhaseInitial     ConversationPhase = "initial"
	PhaseQuestioning ConversationPhase = "questioning"
	PhaseAnalysis    ConversationPhase = "analysis"
)

// Rank orders phases so callers can assert monotonic progression.
func (p ConversationPhase) Rank() int {
	switch p {
	case PhaseInitial:
		return 0
	case PhaseQuestioning:
		return 1
	case PhaseAnalysis:
		return 2
	}
	return -1
}

// Valid reports whether p is a known phase.
func (p ConversationPhase) Valid() bool {
	return p.Rank() >= 0
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	// RoleSystem is reserved for prompt scaffolding and never persisted as a turn.
	RoleSystem MessageRole = "system"
)

// MessageType marks how a turn participates in the severity-scale flow.
type MessageType string

const (
	TypeText MessageType = "text"
	// TypeQuestion marks an assistant turn that expects a severity rating.
	TypeQuestion MessageType = "question"
	// TypeScaleResponse marks a user turn answering a severity question.
	TypeScaleResponse MessageType = "scale_response"
)

// MessageMetadata is the optional structured payload on a message.
// Currently it only carries the severity value of a scale response.
type MessageMetadata struct {
	Severity *int `json:"severity,omitempty"`
}

// ChatSession is one patient's conversation instance. Patient identity
// fields are denormalized at creation time.
type ChatSession struct {
	ID           string            `json:"id"`
	PatientID    string            `json:"patientId"`
	PatientName  string            `json:"patientName"`
	PatientEmail string            `json:"patientEmail"`
	Phase        ConversationPhase `json:"phase"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// ChatMessage is one turn in a session. Messages are insert-only and
// ordered by creation time.
type ChatMessage struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	Role        MessageRole      `json:"role"`
	Content     string           `json:"content"`
	MessageType MessageType      `json:"messageType"`
	Metadata    *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Scan is a prescription scan kept in object storage.
type Scan struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patientId"`
	FileName    string    `json:"fileName"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// MedicalHistory is the patient snapshot fed into the analysis prompt.
type MedicalHistory struct {
	ChronicDiseases []string `json:"chronicDiseases"`
	Allergies       []string `json:"allergies"`
	PastMedications []string `json:"pastMedications"`
	Scans           []Scan   `json:"scans"`
}

// PatientProfile is the editable portion of a patient's medical record.
type PatientProfile struct {
	PatientID       string    `json:"patientId"`
	ChronicDiseases []string  `json:"chronicDiseases"`
	Allergies       []string  `json:"allergies"`
	PastMedications []string  `json:"pastMedications"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MedicalAnalysis is the terminal artifact of a conversation, written
// exactly once when the session reaches the analysis phase.
type MedicalAnalysis struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"sessionId"`
	PatientID      string         `json:"patientId"`
	Symptoms       []string       `json:"symptoms"`
	SeverityScores map[string]int `json:"severityScores"`
	AnalysisResult string         `json:"analysisResult"`
	// MedicalHistoryReviewed snapshots the patient history at analysis time.
	MedicalHistoryReviewed *MedicalHistory `json:"medicalHistoryReviewed,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
}
