package analysis

import (
	"context"
	"strings"
	"testing"

	"medilink/pkg/ai"
	"medilink/pkg/domain"
)

type fakeGenerator struct {
	reply    string
	err      error
	messages []ai.Message
	opts     ai.Options
}

func (f *fakeGenerator) Chat(_ context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	f.messages = messages
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestAnalyzeAssemblesSystemHistoryAndUserMessage(t *testing.T) {
	gen := &fakeGenerator{reply: "How severe is the pain on a scale of 0-5?"}
	svc := New(gen)

	resp, err := svc.Analyze(context.Background(), Request{
		Message:   "It hurts when I bend over",
		PatientID: "patient-1",
		SessionID: "sess-1",
		History: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "I have back pain"},
			{Role: domain.RoleAssistant, Content: "Where exactly is the pain?"},
		},
		Phase: domain.PhaseQuestioning,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(gen.messages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(gen.messages))
	}
	if gen.messages[0].Role != "system" {
		t.Fatalf("first message should be the system prompt, got role %q", gen.messages[0].Role)
	}
	if gen.messages[1].Role != "user" || gen.messages[1].Content != "I have back pain" {
		t.Fatalf("history not mapped 1:1: %+v", gen.messages[1])
	}
	if gen.messages[2].Role != "assistant" {
		t.Fatalf("history roles not preserved: %+v", gen.messages[2])
	}
	if last := gen.messages[len(gen.messages)-1]; last.Role != "user" || last.Content != "It hurts when I bend over" {
		t.Fatalf("new user message must come last: %+v", last)
	}

	if resp.SessionID != "sess-1" || resp.Phase != domain.PhaseQuestioning {
		t.Fatalf("session/phase must be echoed back: %+v", resp)
	}
	if !resp.ExpectsSeverityRating {
		t.Fatal("questioning phase should request a severity rating")
	}
	if resp.Reply != gen.reply {
		t.Fatalf("reply must be returned verbatim, got %q", resp.Reply)
	}
	if gen.opts.Temperature != replyTemperature || gen.opts.MaxTokens != replyMaxTokens {
		t.Fatalf("sampling parameters must be fixed, got %+v", gen.opts)
	}
}

func TestAnalyzePromptVariesByPhase(t *testing.T) {
	tests := []struct {
		phase domain.ConversationPhase
		want  string
	}{
		{domain.PhaseInitial, "one follow-up question"},
		{domain.PhaseQuestioning, "one focused question"},
		{domain.PhaseAnalysis, "Symptom summary"},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			gen := &fakeGenerator{reply: "ok"}
			svc := New(gen)
			_, err := svc.Analyze(context.Background(), Request{Message: "hello", Phase: tt.phase})
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if !strings.Contains(gen.messages[0].Content, tt.want) {
				t.Fatalf("phase %s prompt missing %q:\n%s", tt.phase, tt.want, gen.messages[0].Content)
			}
		})
	}
}

func TestAnalyzeRendersMedicalHistoryWithDefaults(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc := New(gen)
	_, err := svc.Analyze(context.Background(), Request{
		Message: "hello",
		Phase:   domain.PhaseInitial,
		MedicalHistory: &domain.MedicalHistory{
			ChronicDiseases: []string{"asthma", "diabetes"},
		},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	prompt := gen.messages[0].Content
	if !strings.Contains(prompt, "asthma, diabetes") {
		t.Fatalf("chronic diseases missing from prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Allergies: None reported") {
		t.Fatalf("absent allergies should default to None reported:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Prescription scans on file: 0") {
		t.Fatalf("absent scans should default to 0:\n%s", prompt)
	}
}

func TestAnalyzeOmitsHistoryBlockWhenNil(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	svc := New(gen)
	_, err := svc.Analyze(context.Background(), Request{Message: "hello", Phase: domain.PhaseInitial})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if strings.Contains(gen.messages[0].Content, "Patient medical history") {
		t.Fatal("nil medical records must not render a history block")
	}
}

func TestAnalyzeRejectsEmptyMessage(t *testing.T) {
	svc := New(&fakeGenerator{reply: "ok"})
	if _, err := svc.Analyze(context.Background(), Request{Message: "   "}); err == nil {
		t.Fatal("expected error for empty message")
	}
}
