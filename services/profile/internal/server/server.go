package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"medilink/internal/servicetoken"
	"medilink/internal/util"
	"medilink/services/profile/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *servicetoken.Verifier
	MaxUploadSize int64
}

// Server exposes internal HTTP endpoints for the profile service.
// Callers are other MediLink services, authenticated by internal token.
type Server struct {
	app           *app.App
	tokenVerifier *servicetoken.Verifier
	maxUploadSize int64
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		maxUploadSize: maxUpload,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/profiles/", s.withServiceToken(s.handleProfiles))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withServiceToken rejects callers without a valid internal token. A nil
// verifier leaves the service open for local development.
func (s *Server) withServiceToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier != nil {
			if _, err := s.tokenVerifier.Verify(servicetoken.FromRequest(r)); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	})
}

// handleProfiles routes:
//
//	GET  /profiles/{id}
//	PUT  /profiles/{id}
//	GET  /profiles/{id}/history
//	GET  /profiles/{id}/scans
//	POST /profiles/{id}/scans
//	GET  /profiles/{id}/scans/{scanId}/url
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/profiles/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	patientID := parts[0]

	switch {
	case len(parts) == 1:
		s.handleProfile(w, r, patientID)
	case len(parts) == 2 && parts[1] == "history":
		s.handleHistory(w, r, patientID)
	case len(parts) == 2 && parts[1] == "scans":
		s.handleScans(w, r, patientID)
	case len(parts) == 4 && parts[1] == "scans" && parts[3] == "url":
		s.handleScanURL(w, r, patientID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, patientID string) {
	switch r.Method {
	case http.MethodGet:
		profile, err := s.app.GetProfile(patientID)
		if err != nil {
			if errors.Is(err, app.ErrProfileNotFound) {
				writeError(w, http.StatusNotFound, "profile not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load profile")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	case http.MethodPut:
		var in app.UpdateProfileInput
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		profile, err := s.app.UpdateProfile(patientID, in)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to save profile")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, patientID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	history, err := s.app.GetMedicalHistory(r.Context(), patientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load medical history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request, patientID string) {
	switch r.Method {
	case http.MethodGet:
		scans, err := s.app.ListScans(patientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list scans")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
		if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		scan, err := s.app.UploadScan(r.Context(), patientID, header.Filename, file, header.Size)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, scan)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleScanURL(w http.ResponseWriter, r *http.Request, patientID, scanID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, err := s.app.ScanDownloadURL(r.Context(), patientID, scanID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
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
