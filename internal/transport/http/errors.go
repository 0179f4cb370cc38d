package http

import (
	"encoding/json"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps a domain error kind to its HTTP status.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden, domain.KindNotEligible:
		return http.StatusForbidden
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := domain.KindOf(err)
	entry := h.log.WithError(err).WithField("kind", kind.String()).WithField("path", r.URL.Path)
	body := errorBody{Error: kind.String(), Message: err.Error()}
	if status == http.StatusInternalServerError {
		entry.Error("request failed")
		body.Message = "internal error"
	} else {
		entry.Debug("request rejected")
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
