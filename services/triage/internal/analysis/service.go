package analysis

import (
	"context"
	"fmt"
	"strings"

	"medilink/pkg/ai"
	"medilink/pkg/domain"
)

// Fixed sampling parameters for triage replies.
const (
	replyTemperature = 0.7
	replyMaxTokens   = 600
)

// Request is one self-contained analysis invocation. History carries the
// sliding window of prior turns; Message is the patient's new utterance.
type Request struct {
	Message        string
	PatientID      string
	SessionID      string
	History        []domain.ChatMessage
	MedicalHistory *domain.MedicalHistory
	Phase          domain.ConversationPhase
}

// Response echoes the caller-supplied session and phase; the service
// never decides phase on its own.
type Response struct {
	Reply     string                   `json:"reply"`
	SessionID string                   `json:"sessionId"`
	Phase     domain.ConversationPhase `json:"phase"`
	// ExpectsSeverityRating tells the client to show the 0-5 scale picker.
	ExpectsSeverityRating bool `json:"expectsSeverityRating"`
}

// Service produces the next assistant utterance via an external language
// model. It holds no state between invocations.
type Service struct {
	generator ai.ChatGenerator
}

// New constructs the analysis service around a chat generator.
func New(generator ai.ChatGenerator) *Service {
	return &Service{generator: generator}
}

// Analyze builds the phase-specific prompt, forwards the conversation to
// the model, and returns the generated reply verbatim.
func (s *Service) Analyze(ctx context.Context, req Request) (Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, fmt.Errorf("message required")
	}
	phase := req.Phase
	if !phase.Valid() {
		phase = domain.PhaseInitial
	}

	messages := make([]ai.Message, 0, len(req.History)+2)
	messages = append(messages, ai.Message{
		Role:    string(domain.RoleSystem),
		Content: systemPrompt(phase, req.MedicalHistory),
	})
	for _, turn := range req.History {
		messages = append(messages, ai.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, ai.Message{Role: string(domain.RoleUser), Content: message})

	reply, err := s.generator.Chat(ctx, messages, ai.Options{
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("generate reply: %w", err)
	}

	return Response{
		Reply:                 reply,
		SessionID:             req.SessionID,
		Phase:                 phase,
		ExpectsSeverityRating: phase == domain.PhaseQuestioning,
	}, nil
}
