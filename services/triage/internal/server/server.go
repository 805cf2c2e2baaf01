package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"medilink/internal/ratelimit"
	"medilink/internal/usertoken"
	"medilink/internal/util"
	"medilink/pkg/ai"
	"medilink/pkg/domain"
	"medilink/services/triage/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	Limiter       *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the triage service.
type Server struct {
	app           *app.App
	tokenVerifier *usertoken.Verifier
	limiter       *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		limiter:       cfg.Limiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/chat/greeting", s.handleGreeting)
	s.mux.Handle("/chat", s.withPatient(s.handleChat))
	s.mux.Handle("/chat/sessions", s.withPatient(s.handleSessions))
	s.mux.Handle("/chat/sessions/", s.withPatient(s.handleSessionSubresource))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGreeting returns the synthetic opener; no session is created.
func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.app.Greeting())
}

type patientHandler func(http.ResponseWriter, *http.Request, string)

// withPatient resolves the caller's patient id. With a token verifier
// configured the bearer subject is authoritative; without one the
// client-supplied id is trusted (development mode).
func (s *Server) withPatient(next patientHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		patientID := ""
		if s.tokenVerifier != nil {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			subject, err := s.tokenVerifier.VerifySubject(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			patientID = subject
		}
		next(w, r, patientID)
	})
}

type chatRequest struct {
	SessionID     string `json:"sessionId"`
	PatientID     string `json:"patientId"`
	PatientName   string `json:"patientName"`
	PatientEmail  string `json:"patientEmail"`
	Message       string `json:"message"`
	SeverityScore *int   `json:"severityScore"`
}

type chatResponse struct {
	SessionID             string                   `json:"sessionId"`
	Phase                 domain.ConversationPhase `json:"phase"`
	Reply                 domain.ChatMessage       `json:"reply"`
	ExpectsSeverityRating bool                     `json:"expectsSeverityRating"`
	AnalysisCreated       bool                     `json:"analysisCreated,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, patientID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if patientID == "" {
		patientID = strings.TrimSpace(req.PatientID)
	}
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if req.SeverityScore != nil && (*req.SeverityScore < 0 || *req.SeverityScore > 5) {
		writeError(w, http.StatusBadRequest, "severityScore must be between 0 and 5")
		return
	}

	res, err := s.app.SendMessage(r.Context(), app.SendMessageInput{
		SessionID:     req.SessionID,
		PatientID:     patientID,
		PatientName:   req.PatientName,
		PatientEmail:  req.PatientEmail,
		Message:       req.Message,
		SeverityScore: req.SeverityScore,
	})
	if err != nil {
		writeTurnError(w, res, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:             res.SessionID,
		Phase:                 res.Phase,
		Reply:                 res.Reply,
		ExpectsSeverityRating: res.ExpectsSeverityRating,
		AnalysisCreated:       res.AnalysisCreated,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, patientID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if patientID == "" {
		patientID = strings.TrimSpace(r.URL.Query().Get("patientId"))
	}
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	sessions, err := s.app.ListPatientSessions(patientID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleSessionSubresource routes /chat/sessions/{id}/messages and
// /chat/sessions/{id}/analysis.
func (s *Server) handleSessionSubresource(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]
	switch parts[1] {
	case "messages":
		msgs, err := s.app.ListSessionMessages(sessionID)
		if err != nil {
			if errors.Is(err, app.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load messages")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	case "analysis":
		record, ok, err := s.app.GetAnalysis(sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load analysis")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "analysis not available")
			return
		}
		writeJSON(w, http.StatusOK, record)
	default:
		http.NotFound(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTurnError maps turn failures onto HTTP statuses. Degraded turns
// still carry a displayable fallback reply so the client never renders
// a blank bubble.
func writeTurnError(w http.ResponseWriter, res app.SendMessageResult, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, app.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "a previous message is still being processed")
	case errors.Is(err, ai.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "assistant is rate limited",
			"reply":       res.Reply,
			"isRateLimit": true,
		})
	case errors.Is(err, ai.ErrQuotaExhausted):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":             "assistant quota exhausted",
			"reply":             res.Reply,
			"isPaymentRequired": true,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to process message",
			"reply": res.Reply,
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
