package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MimeLyc/live-caption-translator/internal/config"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/service"
)

type errorResponse struct {
	Error string             `json:"error"`
	Kind  protocol.ErrorKind `json:"kind,omitempty"`
}

type apiKeyResponse struct {
	HasAPIKey bool `json:"hasApiKey"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req protocol.TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Action != "" && req.Action != protocol.ActionTranslate {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}
	ack, err := s.coordinator.RequestTranslate(r.Context(), req.ClientID, req.Text)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ok, err := s.coordinator.HasAPIKey(r.Context())
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiKeyResponse{HasAPIKey: ok})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		view, err := s.coordinator.Settings(r.Context())
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut:
		var req config.SettingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		view, err := s.coordinator.UpdateSettings(r.Context(), req)
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.coordinator.Stats(r.Context())
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.coordinator.CacheEntries(r.Context())
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodDelete:
		if err := s.coordinator.ClearCache(r.Context()); err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type statusResponse struct {
	Status      service.StatusReport       `json:"status"`
	Maintenance *service.MaintenanceStatus `json:"maintenance,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.coordinator.Status(r.Context())
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	resp := statusResponse{Status: report}
	if s.maintenance != nil {
		if m, err := s.maintenance.Status(time.Now()); err == nil {
			resp.Maintenance = &m
		} else {
			s.logger.Warn("Failed to compute maintenance schedule: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if s.maintenance == nil {
		writeError(w, http.StatusNotImplemented, "maintenance is not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.maintenance.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func statusForKind(kind protocol.ErrorKind) int {
	switch kind {
	case protocol.ErrValidation:
		return http.StatusBadRequest
	case protocol.ErrMissingCredential:
		return http.StatusPreconditionFailed
	case protocol.ErrTransportFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeProtocolError(w http.ResponseWriter, err error) {
	var pErr *protocol.Error
	if !errors.As(err, &pErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusForKind(pErr.Kind), errorResponse{
		Error: pErr.UserMessage(),
		Kind:  pErr.Kind,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
