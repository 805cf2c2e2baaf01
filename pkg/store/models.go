package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ChatSessionModel struct {
	ID           string `gorm:"primaryKey"`
	PatientID    string `gorm:"not null;index"`
	PatientName  string
	PatientEmail string
	Phase        string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ChatSessionModel) TableName() string { return "chat_sessions" }

type ChatMessageModel struct {
	ID          string `gorm:"primaryKey"`
	SessionID   string `gorm:"not null;index:idx_message_session_created"`
	Role        string `gorm:"not null"`
	MessageType string `gorm:"not null"`
	Content     string `gorm:"type:text;not null"`
	Metadata    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_message_session_created"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

type MedicalAnalysisModel struct {
	ID             string `gorm:"primaryKey"`
	SessionID      string `gorm:"not null;uniqueIndex"`
	PatientID      string `gorm:"not null;index"`
	Symptoms       datatypes.JSON `gorm:"type:jsonb"`
	SeverityScores datatypes.JSON `gorm:"type:jsonb"`
	AnalysisResult string         `gorm:"type:text;not null"`
	MedicalHistory datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (MedicalAnalysisModel) TableName() string { return "medical_analyses" }

type PatientProfileModel struct {
	PatientID       string         `gorm:"primaryKey"`
	ChronicDiseases datatypes.JSON `gorm:"type:jsonb"`
	Allergies       datatypes.JSON `gorm:"type:jsonb"`
	PastMedications datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

func (PatientProfileModel) TableName() string { return "patient_profiles" }

type ScanModel struct {
	ID          string `gorm:"primaryKey"`
	PatientID   string `gorm:"not null;index"`
	FileName    string `gorm:"not null"`
	StorageKey  string `gorm:"not null"`
	ContentType string
	SizeBytes   int64
	UploadedAt  time.Time `gorm:"not null;index"`
}

func (ScanModel) TableName() string { return "prescription_scans" }
