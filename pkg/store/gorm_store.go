package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medilink/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&ChatSessionModel{},
		&ChatMessageModel{},
		&MedicalAnalysisModel{},
		&PatientProfileModel{},
		&ScanModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateSession inserts a new session row.
func (s *GormStore) CreateSession(session domain.ChatSession) error {
	model := sessionToModel(session)
	return s.db.Create(&model).Error
}

// GetSession retrieves a session by id.
func (s *GormStore) GetSession(id string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListPatientSessions returns a patient's sessions, most recent first.
func (s *GormStore) ListPatientSessions(patientID string, limit int) ([]domain.ChatSession, error) {
	var models []ChatSessionModel
	tx := s.db.Where("patient_id = ?", patientID).Order("updated_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatSession, 0, len(models))
	for _, m := range models {
		res = append(res, sessionFromModel(m))
	}
	return res, nil
}

// AppendMessage records a turn and bumps the session's updated_at.
func (s *GormStore) AppendMessage(msg domain.ChatMessage) error {
	model, err := messageToModel(msg)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ChatSessionModel{}).
			Where("id = ?", msg.SessionID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

// AppendAssistantTurn records the assistant turn and commits the session
// phase in one transaction, so phase can never drift from the transcript.
func (s *GormStore) AppendAssistantTurn(msg domain.ChatMessage, phase domain.ConversationPhase) error {
	model, err := messageToModel(msg)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ChatSessionModel{}).
			Where("id = ?", msg.SessionID).
			Updates(map[string]any{
				"phase":      string(phase),
				"updated_at": msg.CreatedAt,
			}).Error
	})
}

// ListSessionMessages returns a session's turns in creation order.
// limit keeps the most recent turns; zero means all.
func (s *GormStore) ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	tx := s.db.Where("session_id = ?", sessionID)
	if limit > 0 {
		// Fetch newest-first to apply the limit, then reverse below.
		tx = tx.Order("created_at DESC").Limit(limit)
	} else {
		tx = tx.Order("created_at ASC")
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}
	res := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		msg, err := messageFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, nil
}

// CountSessionQuestions counts assistant turns typed as questions.
func (s *GormStore) CountSessionQuestions(sessionID string) (int, error) {
	var count int64
	err := s.db.Model(&ChatMessageModel{}).
		Where("session_id = ? AND role = ? AND message_type = ?",
			sessionID, string(domain.RoleAssistant), string(domain.TypeQuestion)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateAnalysis inserts the analysis record; the unique index on
// session_id makes the write idempotent. Returns false when a record
// already existed.
func (s *GormStore) CreateAnalysis(a domain.MedicalAnalysis) (bool, error) {
	model, err := analysisToModel(a)
	if err != nil {
		return false, err
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetAnalysisBySession retrieves the analysis for a session.
func (s *GormStore) GetAnalysisBySession(sessionID string) (domain.MedicalAnalysis, bool, error) {
	var model MedicalAnalysisModel
	if err := s.db.First(&model, "session_id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.MedicalAnalysis{}, false, nil
		}
		return domain.MedicalAnalysis{}, false, err
	}
	return analysisFromModel(model)
}

// UpsertProfile creates or updates a patient profile.
func (s *GormStore) UpsertProfile(p domain.PatientProfile) error {
	model, err := profileToModel(p)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chronic_diseases", "allergies", "past_medications", "updated_at"}),
	}).Create(&model).Error
}

// GetProfile retrieves a patient profile.
func (s *GormStore) GetProfile(patientID string) (domain.PatientProfile, bool, error) {
	var model PatientProfileModel
	if err := s.db.First(&model, "patient_id = ?", patientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PatientProfile{}, false, nil
		}
		return domain.PatientProfile{}, false, err
	}
	return profileFromModel(model)
}

// AddScan records an uploaded prescription scan.
func (s *GormStore) AddScan(scan domain.Scan) error {
	model := scanToModel(scan)
	return s.db.Create(&model).Error
}

// ListScans returns a patient's scans in upload order.
func (s *GormStore) ListScans(patientID string) ([]domain.Scan, error) {
	var models []ScanModel
	if err := s.db.Where("patient_id = ?", patientID).Order("uploaded_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Scan, 0, len(models))
	for _, m := range models {
		res = append(res, scanFromModel(m))
	}
	return res, nil
}

func sessionToModel(s domain.ChatSession) ChatSessionModel {
	return ChatSessionModel{
		ID:           s.ID,
		PatientID:    s.PatientID,
		PatientName:  s.PatientName,
		PatientEmail: s.PatientEmail,
		Phase:        string(s.Phase),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func sessionFromModel(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:           m.ID,
		PatientID:    m.PatientID,
		PatientName:  m.PatientName,
		PatientEmail: m.PatientEmail,
		Phase:        domain.ConversationPhase(m.Phase),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func messageToModel(msg domain.ChatMessage) (ChatMessageModel, error) {
	model := ChatMessageModel{
		ID:          msg.ID,
		SessionID:   msg.SessionID,
		Role:        string(msg.Role),
		MessageType: string(msg.MessageType),
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
	}
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return ChatMessageModel{}, fmt.Errorf("encode message metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

func messageFromModel(m ChatMessageModel) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Role:        domain.MessageRole(m.Role),
		Content:     m.Content,
		MessageType: domain.MessageType(m.MessageType),
		CreatedAt:   m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		var meta domain.MessageMetadata
		if err := json.Unmarshal(m.Metadata, &meta); err != nil {
			return domain.ChatMessage{}, fmt.Errorf("decode message metadata: %w", err)
		}
		msg.Metadata = &meta
	}
	return msg, nil
}

func analysisToModel(a domain.MedicalAnalysis) (MedicalAnalysisModel, error) {
	symptoms, err := json.Marshal(a.Symptoms)
	if err != nil {
		return MedicalAnalysisModel{}, fmt.Errorf("encode symptoms: %w", err)
	}
	scores, err := json.Marshal(a.SeverityScores)
	if err != nil {
		return MedicalAnalysisModel{}, fmt.Errorf("encode severity scores: %w", err)
	}
	model := MedicalAnalysisModel{
		ID:             a.ID,
		SessionID:      a.SessionID,
		PatientID:      a.PatientID,
		Symptoms:       datatypes.JSON(symptoms),
		SeverityScores: datatypes.JSON(scores),
		AnalysisResult: a.AnalysisResult,
		CreatedAt:      a.CreatedAt,
	}
	if a.MedicalHistoryReviewed != nil {
		history, err := json.Marshal(a.MedicalHistoryReviewed)
		if err != nil {
			return MedicalAnalysisModel{}, fmt.Errorf("encode medical history: %w", err)
		}
		model.MedicalHistory = datatypes.JSON(history)
	}
	return model, nil
}

func analysisFromModel(m MedicalAnalysisModel) (domain.MedicalAnalysis, bool, error) {
	a := domain.MedicalAnalysis{
		ID:             m.ID,
		SessionID:      m.SessionID,
		PatientID:      m.PatientID,
		AnalysisResult: m.AnalysisResult,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.Symptoms) > 0 {
		if err := json.Unmarshal(m.Symptoms, &a.Symptoms); err != nil {
			return domain.MedicalAnalysis{}, false, fmt.Errorf("decode symptoms: %w", err)
		}
	}
	if len(m.SeverityScores) > 0 {
		if err := json.Unmarshal(m.SeverityScores, &a.SeverityScores); err != nil {
			return domain.MedicalAnalysis{}, false, fmt.Errorf("decode severity scores: %w", err)
		}
	}
	if len(m.MedicalHistory) > 0 {
		var history domain.MedicalHistory
		if err := json.Unmarshal(m.MedicalHistory, &history); err != nil {
			return domain.MedicalAnalysis{}, false, fmt.Errorf("decode medical history: %w", err)
		}
		a.MedicalHistoryReviewed = &history
	}
	return a, true, nil
}

func profileToModel(p domain.PatientProfile) (PatientProfileModel, error) {
	chronic, err := json.Marshal(emptyIfNil(p.ChronicDiseases))
	if err != nil {
		return PatientProfileModel{}, err
	}
	allergies, err := json.Marshal(emptyIfNil(p.Allergies))
	if err != nil {
		return PatientProfileModel{}, err
	}
	meds, err := json.Marshal(emptyIfNil(p.PastMedications))
	if err != nil {
		return PatientProfileModel{}, err
	}
	now := time.Now().UTC()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return PatientProfileModel{
		PatientID:       p.PatientID,
		ChronicDiseases: datatypes.JSON(chronic),
		Allergies:       datatypes.JSON(allergies),
		PastMedications: datatypes.JSON(meds),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func profileFromModel(m PatientProfileModel) (domain.PatientProfile, bool, error) {
	p := domain.PatientProfile{
		PatientID: m.PatientID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, field := range []struct {
		raw  datatypes.JSON
		dest *[]string
	}{
		{m.ChronicDiseases, &p.ChronicDiseases},
		{m.Allergies, &p.Allergies},
		{m.PastMedications, &p.PastMedications},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return domain.PatientProfile{}, false, fmt.Errorf("decode profile field: %w", err)
		}
	}
	return p, true, nil
}

func scanToModel(s domain.Scan) ScanModel {
	return ScanModel{
		ID:          s.ID,
		PatientID:   s.PatientID,
		FileName:    s.FileName,
		StorageKey:  s.StorageKey,
		ContentType: s.ContentType,
		SizeBytes:   s.SizeBytes,
		UploadedAt:  s.UploadedAt,
	}
}

func scanFromModel(m ScanModel) domain.Scan {
	return domain.Scan{
		ID:          m.ID,
		PatientID:   m.PatientID,
		FileName:    m.FileName,
		StorageKey:  m.StorageKey,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
		UploadedAt:  m.UploadedAt,
	}
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
