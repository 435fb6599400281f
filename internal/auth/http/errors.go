package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// writeServiceError maps a CredentialService error to a status code and
// error body. Anything unrecognised is a 500 and is logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	// Reuse may wrap a store failure from the wipe, so it goes first.
	case errors.Is(err, service.ErrReuseDetected):
		httpx.WriteError(w, http.StatusForbidden, "refresh_token_reused", "refresh token was already used; all sessions revoked, log in again")
	case errors.Is(err, service.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrAlreadyRegistered):
		httpx.WriteError(w, http.StatusConflict, "already_registered", "shop already registered")
	case errors.Is(err, service.ErrNotRegistered):
		httpx.WriteError(w, http.StatusNotFound, "not_registered", "shop not registered")
	case errors.Is(err, service.ErrSessionExists):
		httpx.WriteError(w, http.StatusConflict, "session_exists", "shop already has an active session")
	case errors.Is(err, service.ErrAuthentication):
		httpx.WriteError(w, http.StatusUnauthorized, "authentication_failed", "authentication failed")
	case errors.Is(err, service.ErrStaleToken):
		httpx.WriteError(w, http.StatusUnauthorized, "stale_refresh_token", "refresh token is not current")
	case errors.Is(err, jwtx.ErrExpired):
		httpx.WriteError(w, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, jwtx.ErrInvalidToken):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "token is invalid")
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
