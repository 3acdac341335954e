package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindCredentialUnavailable:  http.StatusUnauthorized,
	apperr.KindAuthExpired:            http.StatusUnauthorized,
	apperr.KindRetriesExhausted:       http.StatusUnauthorized,
	apperr.KindUnsupportedContentType: http.StatusUnsupportedMediaType,
	apperr.KindQuotaExceeded:          http.StatusRequestEntityTooLarge,
	apperr.KindPolicyRejected:         http.StatusForbidden,
	apperr.KindValidation:             http.StatusBadRequest,
	apperr.KindNotFound:               http.StatusNotFound,
	apperr.KindRemote:                 http.StatusBadGateway,
}

// statusFor maps a tagged error to the HTTP status shown to the UI.
func statusFor(err error) int {
	if status, ok := kindStatus[apperr.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func errorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Success:  false,
		Kind:     apperr.KindOf(err).String(),
		Message:  apperr.ClientMessage(err),
		MIMEType: apperr.MIMETypeOf(err),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.Debug().Str("uri", r.RequestURI).Msg("Client went away")
		return
	}
	status := statusFor(err)
	logEvent := s.logger.Warn()
	if status >= 500 {
		logEvent = s.logger.Error()
	}
	logEvent.
		Err(err).
		Int("status_code", status).
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Msg("Request failed")
	s.writeJSON(w, status, errorResponse(err))
}
