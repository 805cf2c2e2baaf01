package store

import (
	"testing"
	"time"

	"medilink/pkg/domain"
)

func newTestSession(id string) domain.ChatSession {
	now := time.Now().UTC()
	return domain.ChatSession{
		ID:           id,
		PatientID:    "patient-1",
		PatientName:  "Ada",
		PatientEmail: "ada@example.com",
		Phase:        domain.PhaseInitial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMemoryStoreMessageOrderAndWindow(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateSession(newTestSession("sess-1")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		err := s.AppendMessage(domain.ChatMessage{
			ID:          string(rune('a' + i)),
			SessionID:   "sess-1",
			Role:        domain.RoleUser,
			Content:     string(rune('a' + i)),
			MessageType: domain.TypeText,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append message %d: %v", i, err)
		}
	}

	all, err := s.ListSessionMessages("sess-1", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("messages out of creation order at %d", i)
		}
	}

	windowed, err := s.ListSessionMessages("sess-1", 3)
	if err != nil {
		t.Fatalf("list windowed: %v", err)
	}
	if len(windowed) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(windowed))
	}
	if windowed[0].Content != "c" || windowed[2].Content != "e" {
		t.Fatalf("window should keep the most recent turns in order, got %+v", windowed)
	}
}

func TestMemoryStoreAssistantTurnCommitsPhase(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateSession(newTestSession("sess-1")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	err := s.AppendAssistantTurn(domain.ChatMessage{
		ID:          "m1",
		SessionID:   "sess-1",
		Role:        domain.RoleAssistant,
		Content:     "On a scale of 0-5, how severe is it?",
		MessageType: domain.TypeQuestion,
		CreatedAt:   time.Now().UTC(),
	}, domain.PhaseQuestioning)
	if err != nil {
		t.Fatalf("append assistant turn: %v", err)
	}

	sess, ok, err := s.GetSession("sess-1")
	if err != nil || !ok {
		t.Fatalf("get session: ok=%v err=%v", ok, err)
	}
	if sess.Phase != domain.PhaseQuestioning {
		t.Fatalf("expected phase questioning, got %s", sess.Phase)
	}
	count, err := s.CountSessionQuestions("sess-1")
	if err != nil {
		t.Fatalf("count questions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 question turn, got %d", count)
	}
}

func TestMemoryStoreCreateAnalysisIsWriteOnce(t *testing.T) {
	s := NewMemoryStore()
	analysis := domain.MedicalAnalysis{
		ID:             "an-1",
		SessionID:      "sess-1",
		PatientID:      "patient-1",
		Symptoms:       []string{"headache"},
		SeverityScores: map[string]int{"headache": 4},
		AnalysisResult: "summary",
		CreatedAt:      time.Now().UTC(),
	}
	created, err := s.CreateAnalysis(analysis)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	created, err = s.CreateAnalysis(analysis)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("second create should be a no-op")
	}
	got, ok, err := s.GetAnalysisBySession("sess-1")
	if err != nil || !ok {
		t.Fatalf("get analysis: ok=%v err=%v", ok, err)
	}
	if got.SeverityScores["headache"] != 4 {
		t.Fatalf("unexpected severity scores %+v", got.SeverityScores)
	}
}

func TestMemoryStoreDuplicateSessionRejected(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateSession(newTestSession("sess-1")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CreateSession(newTestSession("sess-1")); err == nil {
		t.Fatal("expected duplicate session to be rejected")
	}
}

func TestMemoryStoreProfileAndScans(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpsertProfile(domain.PatientProfile{
		PatientID:       "patient-1",
		ChronicDiseases: []string{"asthma"},
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	err = s.UpsertProfile(domain.PatientProfile{
		PatientID: "patient-1",
		Allergies: []string{"penicillin"},
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	p, ok, err := s.GetProfile("patient-1")
	if err != nil || !ok {
		t.Fatalf("get profile: ok=%v err=%v", ok, err)
	}
	if len(p.Allergies) != 1 || p.Allergies[0] != "penicillin" {
		t.Fatalf("unexpected allergies %+v", p.Allergies)
	}
	if p.CreatedAt.IsZero() {
		t.Fatal("upsert should preserve original created_at")
	}

	for i := 0; i < 2; i++ {
		if err := s.AddScan(domain.Scan{ID: string(rune('a' + i)), PatientID: "patient-1", FileName: "rx.png", UploadedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("add scan: %v", err)
		}
	}
	scans, err := s.ListScans("patient-1")
	if err != nil {
		t.Fatalf("list scans: %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(scans))
	}
}
