package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/dayuer/castbot/internal/pipeline"
)

const allowedMethods = "POST, OPTIONS"

func (s *Server) handleWebhookPath(w http.ResponseWriter, r *http.Request) {
	s.setCORS(w)
	switch r.Method {
	case http.MethodPost:
		s.handleWebhook(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		w.Header().Set("Allow", allowedMethods)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", allowedMethods)
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+s.cfg.SignatureHeader)
	h.Set("Access-Control-Max-Age", "86400")
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusBadRequest, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	adm, err := s.admitter.Admit(r.Context(), pipeline.Request{
		Caller:    callerIP(r),
		Body:      body,
		Signature: r.Header.Get(s.cfg.SignatureHeader),
	})

	var (
		validationErr *pipeline.ValidationError
		rateErr       *pipeline.RateLimitError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "taskId": adm.TaskID})
	case errors.Is(err, pipeline.ErrDuplicateEvent):
		writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
	case errors.As(err, &validationErr):
		writeJSONError(w, http.StatusBadRequest, validationErr.Reason)
	case errors.Is(err, pipeline.ErrAuthentication):
		writeJSONError(w, http.StatusUnauthorized, "invalid signature")
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.FormatInt(adm.RetryAfter, 10))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "rate limit exceeded",
			"retryAfter": adm.RetryAfter,
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// callerIP is the socket address without port, or the forwarded client
// address when proxy headers are trusted.
func callerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
