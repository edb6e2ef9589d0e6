package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/middleware"
	"crenors/guildbot/internal/models/dtos/responses"
	"crenors/guildbot/internal/services"
)

func respondWithSuccess[T any](w http.ResponseWriter, r *http.Request, statusCode int, data *T) {
	resp := responses.APIResponse[T]{
		Status:    string(constants.APIStatusOk),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.RequestID(r.Context()),
		Data:      data,
	}

	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

func respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	resp := responses.APIResponse[any]{
		Status:    string(constants.APIStatusError),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.RequestID(r.Context()),
		Error:     message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(resp)
}

// statusFor maps a state machine error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidOption):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError logs store and transport failures; validation and
// state errors go back to the caller as they are.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WithRequest(middleware.RequestID(r.Context()), r.URL.Path).Errorw("Request failed", "error", err)
	}
	respondWithError(w, r, status, err.Error())
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
