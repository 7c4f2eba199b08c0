package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"momo-billing/internal/domain"
	"momo-billing/internal/infra/logging"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	var (
		ve *domain.ValidationError
		pe *domain.ProviderError
		re *domain.ReconciliationError
	)
	switch {
	case errors.As(err, &ve), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &re):
		return http.StatusInternalServerError
	case errors.As(err, &pe), errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (s *Server) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Int("status", code).Msg("request failed")
	}
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusNotFound:
		msg = "not found"
	}
	writeError(w, code, msg)
}
