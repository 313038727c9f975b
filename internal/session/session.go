// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package session issues the browser session cookie and the CSRF token bound
// to it.
package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/constants"
	requestutil "github.com/taibuivan/aegis/internal/platform/request"
	"github.com/taibuivan/aegis/internal/platform/respond"
	"github.com/taibuivan/aegis/internal/trust/csrf"
)

// Handler serves the CSRF bootstrap endpoint.
type Handler struct {
	guard         *csrf.Guard
	secureCookies bool
}

// NewHandler constructs a new [Handler].
func NewHandler(guard *csrf.Guard, secureCookies bool) *Handler {
	return &Handler{guard: guard, secureCookies: secureCookies}
}

// Routes mounts GET /csrf.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/csrf", handler.csrfToken)
	return router
}

/*
CSRFToken returns a token for the caller's session.

GET /session/csrf

Description: A caller without a session cookie gets a fresh one. The token
must be echoed in the X-CSRF-Token header (or the csrf_token form field) on
state-changing requests.

Response:
  - 200: {csrf_token, header_name}
*/
func (handler *Handler) csrfToken(writer http.ResponseWriter, request *http.Request) {
	sessionID := requestutil.SessionID(request)

	if sessionID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			respond.Error(writer, request, apperr.Internal(err))
			return
		}
		sessionID = id.String()

		http.SetCookie(writer, &http.Cookie{
			Name:     constants.SessionCookieName,
			Value:    sessionID,
			Path:     "/",
			Secure:   handler.secureCookies,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writer.Header().Set("Cache-Control", "no-store")
	respond.OK(writer, map[string]string{
		"csrf_token":  handler.guard.Generate(sessionID),
		"header_name": constants.HeaderCSRFToken,
	})
}
