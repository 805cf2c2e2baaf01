package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"medilink/internal/util"
	"medilink/pkg/ai"
	"medilink/pkg/domain"
	"medilink/pkg/queue"
	"medilink/pkg/store"
	"medilink/services/triage/internal/analysis"
)

// GreetingMessage seeds every new conversation before a session exists.
const GreetingMessage = "Hello! I'm MediAssist, your virtual health assistant. Tell me what's bothering you today, and I'll ask a few questions to better understand your symptoms."

// Fallback replies shown when a turn fails; the failing turn is never
// persisted, so the patient can simply resend.
const (
	fallbackGeneric     = "I'm sorry, I ran into a problem while processing your message. Please try again."
	fallbackRateLimited = "I'm receiving a lot of requests right now. Please wait a moment and send your message again."
	fallbackQuota       = "The assistant is temporarily unavailable. Please contact support if this keeps happening."
)

// questionsBeforeAnalysis is how many severity questions must be asked
// before the conversation converges to the analysis phase.
const questionsBeforeAnalysis = 3

// historyWindow bounds how many prior turns are sent to the model.
const historyWindow = 10

// HistoryFetcher reads a patient's medical-history snapshot. Failures
// degrade the turn (nil snapshot) rather than failing it.
type HistoryFetcher interface {
	GetMedicalHistory(ctx context.Context, patientID string) (*domain.MedicalHistory, error)
}

// AnalysisQueue publishes analysis-ready events for doctor review.
type AnalysisQueue interface {
	Enqueue(ctx context.Context, sessionID, patientID string) (queue.Job, error)
}

// Config holds runtime configuration for the conversation controller.
type Config struct {
	DatabaseURL string
	Store       store.Store

	// Generator overrides provider construction (used in tests).
	Generator ai.ChatGenerator
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string

	Profiles HistoryFetcher
	Queue    AnalysisQueue
}

// App owns the conversation state machine: it mediates between patient
// input, persistence, and the analysis service.
type App struct {
	store    store.Store
	analysis *analysis.Service
	profiles HistoryFetcher
	queue    AnalysisQueue

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs the application. The provider credential is a hard
// requirement: a missing key is a deployment error, not a runtime
// condition to recover from.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	generator := cfg.Generator
	if generator == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("llm api key required")
		}
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("generation model required")
		}
		provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
		switch provider {
		case "", "openai":
			generator = ai.NewOpenAICompatChat(cfg.BaseURL, cfg.APIKey, cfg.Model)
		case "gemini":
			var err error
			generator, err = ai.NewGeminiChat(cfg.APIKey, cfg.Model)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown llm provider: %s", provider)
		}
	}

	return &App{
		store:    dataStore,
		analysis: analysis.New(generator),
		profiles: cfg.Profiles,
		queue:    cfg.Queue,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Greeting returns the synthetic assistant greeting that seeds a new
// conversation. No session exists yet and nothing is persisted.
func (a *App) Greeting() domain.ChatMessage {
	return domain.ChatMessage{
		ID:          "init",
		Role:        domain.RoleAssistant,
		Content:     GreetingMessage,
		MessageType: domain.TypeText,
		CreatedAt:   time.Now().UTC(),
	}
}

// SendMessageInput is one patient turn.
type SendMessageInput struct {
	SessionID     string
	PatientID     string
	PatientName   string
	PatientEmail  string
	Message       string
	SeverityScore *int
}

// SendMessageResult is the outcome of a successful (or degraded) turn.
type SendMessageResult struct {
	SessionID             string
	Phase                 domain.ConversationPhase
	Reply                 domain.ChatMessage
	ExpectsSeverityRating bool
	AnalysisCreated       bool
}

// SendMessage runs one conversation turn: persist the user message,
// fetch the medical history, advance the phase, call the analysis
// service, persist the reply, and snapshot the analysis when the
// conversation has just converged.
//
// When the analysis call (or any step after the user message is saved)
// fails, the returned result carries a synthetic assistant reply and the
// session's phase is left unchanged; the error describes the failure
// kind for the transport layer.
func (a *App) SendMessage(ctx context.Context, in SendMessageInput) (SendMessageResult, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return SendMessageResult{}, ErrEmptyMessage
	}
	if strings.TrimSpace(in.PatientID) == "" {
		return SendMessageResult{}, fmt.Errorf("patient id required")
	}

	session, err := a.resolveSession(in)
	if err != nil {
		return SendMessageResult{}, err
	}

	lock := a.sessionLock(session.ID)
	if !lock.TryLock() {
		return SendMessageResult{SessionID: session.ID, Phase: session.Phase}, ErrTurnInFlight
	}
	defer lock.Unlock()

	userMsg := domain.ChatMessage{
		ID:          util.NewID(),
		SessionID:   session.ID,
		Role:        domain.RoleUser,
		Content:     text,
		MessageType: domain.TypeText,
		CreatedAt:   time.Now().UTC(),
	}
	if in.SeverityScore != nil {
		userMsg.MessageType = domain.TypeScaleResponse
		userMsg.Metadata = &domain.MessageMetadata{Severity: in.SeverityScore}
	}
	if err := a.store.AppendMessage(userMsg); err != nil {
		return SendMessageResult{}, fmt.Errorf("save user message: %w", err)
	}

	// Best-effort: a missing snapshot degrades personalization only.
	var history *domain.MedicalHistory
	if a.profiles != nil {
		history, err = a.profiles.GetMedicalHistory(ctx, in.PatientID)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("medical history fetch failed, proceeding without",
				"patient_id", in.PatientID, "err", err)
			history = nil
		}
	}

	questionCount, err := a.store.CountSessionQuestions(session.ID)
	if err != nil {
		return a.failedTurn(session, fmt.Errorf("count question turns: %w", err))
	}
	next := nextPhase(session.Phase, questionCount)

	transcript, err := a.store.ListSessionMessages(session.ID, 0)
	if err != nil {
		return a.failedTurn(session, fmt.Errorf("load transcript: %w", err))
	}
	window := historyBefore(transcript, userMsg.ID, historyWindow)

	resp, err := a.analysis.Analyze(ctx, analysis.Request{
		Message:        text,
		PatientID:      in.PatientID,
		SessionID:      session.ID,
		History:        window,
		MedicalHistory: history,
		Phase:          next,
	})
	if err != nil {
		return a.failedTurn(session, err)
	}

	assistantMsg := domain.ChatMessage{
		ID:          util.NewID(),
		SessionID:   session.ID,
		Role:        domain.RoleAssistant,
		Content:     resp.Reply,
		MessageType: domain.TypeText,
		CreatedAt:   time.Now().UTC(),
	}
	if next == domain.PhaseQuestioning {
		assistantMsg.MessageType = domain.TypeQuestion
	}
	if err := a.store.AppendAssistantTurn(assistantMsg, next); err != nil {
		return a.failedTurn(session, fmt.Errorf("save assistant message: %w", err))
	}

	analysisCreated := false
	if session.Phase != domain.PhaseAnalysis && next == domain.PhaseAnalysis {
		analysisCreated = a.snapshotAnalysis(ctx, session, resp.Reply, append(transcript, assistantMsg), history)
	}

	return SendMessageResult{
		SessionID:             session.ID,
		Phase:                 next,
		Reply:                 assistantMsg,
		ExpectsSeverityRating: resp.ExpectsSeverityRating,
		AnalysisCreated:       analysisCreated,
	}, nil
}

// ListSessionMessages returns a session's transcript in creation order.
func (a *App) ListSessionMessages(sessionID string) ([]domain.ChatMessage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	if _, ok, err := a.store.GetSession(sessionID); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	} else if !ok {
		return nil, ErrSessionNotFound
	}
	return a.store.ListSessionMessages(sessionID, 0)
}

// GetAnalysis returns the session's analysis record once it exists.
func (a *App) GetAnalysis(sessionID string) (domain.MedicalAnalysis, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.MedicalAnalysis{}, false, fmt.Errorf("session id required")
	}
	return a.store.GetAnalysisBySession(sessionID)
}

// ListPatientSessions lists a patient's recent sessions.
func (a *App) ListPatientSessions(patientID string, limit int) ([]domain.ChatSession, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("patient id required")
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	return a.store.ListPatientSessions(patientID, limit)
}

// resolveSession loads the session or creates one lazily on the first
// real message. Creation failure aborts the whole turn.
func (a *App) resolveSession(in SendMessageInput) (domain.ChatSession, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID != "" {
		session, ok, err := a.store.GetSession(sessionID)
		if err != nil {
			return domain.ChatSession{}, fmt.Errorf("load session: %w", err)
		}
		if !ok {
			return domain.ChatSession{}, ErrSessionNotFound
		}
		return session, nil
	}

	now := time.Now().UTC()
	session := domain.ChatSession{
		ID:           util.NewID(),
		PatientID:    in.PatientID,
		PatientName:  in.PatientName,
		PatientEmail: in.PatientEmail,
		Phase:        domain.PhaseInitial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateSession(session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// failedTurn converts a mid-turn failure into a synthetic, unpersisted
// assistant reply. Phase is left unchanged so the patient can resend.
func (a *App) failedTurn(session domain.ChatSession, err error) (SendMessageResult, error) {
	fallback := fallbackGeneric
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		fallback = fallbackRateLimited
	case errors.Is(err, ai.ErrQuotaExhausted):
		fallback = fallbackQuota
	}
	return SendMessageResult{
		SessionID: session.ID,
		Phase:     session.Phase,
		Reply: domain.ChatMessage{
			ID:          util.NewID(),
			SessionID:   session.ID,
			Role:        domain.RoleAssistant,
			Content:     fallback,
			MessageType: domain.TypeText,
			CreatedAt:   time.Now().UTC(),
		},
	}, err
}

// snapshotAnalysis persists the terminal analysis artifact. This runs
// only on the transition edge into the analysis phase; the store's
// per-session uniqueness is the backstop against duplicates.
func (a *App) snapshotAnalysis(ctx context.Context, session domain.ChatSession, reply string, transcript []domain.ChatMessage, history *domain.MedicalHistory) bool {
	symptoms := make([]string, 0)
	scores := make(map[string]int)
	for _, msg := range transcript {
		if msg.Role == domain.RoleUser {
			symptoms = append(symptoms, msg.Content)
		}
		if msg.Metadata != nil && msg.Metadata.Severity != nil {
			scores[msg.Content] = *msg.Metadata.Severity
		}
	}
	record := domain.MedicalAnalysis{
		ID:                     util.NewID(),
		SessionID:              session.ID,
		PatientID:              session.PatientID,
		Symptoms:               symptoms,
		SeverityScores:         scores,
		AnalysisResult:         reply,
		MedicalHistoryReviewed: history,
		CreatedAt:              time.Now().UTC(),
	}
	created, err := a.store.CreateAnalysis(record)
	if err != nil {
		util.LoggerFromContext(ctx).Error("persist medical analysis failed",
			"session_id", session.ID, "err", err)
		return false
	}
	if created && a.queue != nil {
		if _, err := a.queue.Enqueue(ctx, session.ID, session.PatientID); err != nil {
			util.LoggerFromContext(ctx).Warn("enqueue analysis-ready event failed",
				"session_id", session.ID, "err", err)
		}
	}
	return created
}

// nextPhase advances the one-way phase progression. Phase never moves
// backwards; analysis is terminal.
func nextPhase(current domain.ConversationPhase, questionCount int) domain.ConversationPhase {
	switch current {
	case domain.PhaseInitial:
		if questionCount == 0 {
			return domain.PhaseQuestioning
		}
	case domain.PhaseQuestioning:
		if questionCount >= questionsBeforeAnalysis {
			return domain.PhaseAnalysis
		}
	}
	return current
}

// historyBefore returns up to limit turns preceding the message with the
// given id, preserving creation order.
func historyBefore(transcript []domain.ChatMessage, beforeID string, limit int) []domain.ChatMessage {
	cut := len(transcript)
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].ID == beforeID {
			cut = i
			break
		}
	}
	window := transcript[:cut]
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}

func (a *App) sessionLock(sessionID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[sessionID] = lock
	}
	return lock
}
