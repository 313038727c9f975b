// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/middleware"
	requestutil "github.com/taibuivan/aegis/internal/platform/request"
	"github.com/taibuivan/aegis/internal/platform/respond"
	"github.com/taibuivan/aegis/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// The refresh token travels only in an HttpOnly cookie scoped to the auth
// routes. The access token is returned in the body.
type Handler struct {
	authService   *Service
	secureCookies bool
}

// NewHandler constructs a new [Handler]. secureCookies marks the refresh
// cookie Secure and should be on everywhere except local development.
func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{authService: service, secureCookies: secureCookies}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /login      : Authenticates and returns a token pair.
//   - POST /refresh    : Rotates the refresh cookie.
//   - POST /logout     : Revokes the current tokens.
//   - POST /logout-all : Revokes every session of the caller.
//   - GET  /me         : Returns the caller's account.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/logout-all", handler.logoutAll)
		r.Get("/me", handler.me)
	})

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/*
Login authenticates a user and establishes a session.

POST /api/v1/auth/login

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Access token, expiry and user profile. Refresh token in cookie.
  - 400: VALIDATION_ERROR or MALICIOUS_INPUT
  - 401: UNAUTHENTICATED (INVALID_CREDENTIALS)
  - 429: RATE_LIMITED (LOGIN_LOCKED)
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		FieldLimit(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MaxLen(FieldPassword, input.Password, MaxPasswordLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		IPAddress: ctxutil.GetClientIP(request.Context()),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshExpiresAt)
	respond.OK(writer, sessionPayload(session))
}

/*
Refresh issues a new access token using the refresh cookie.

POST /api/v1/auth/refresh

Response:
  - 200: New access token credentials, rotated cookie
  - 401: UNAUTHENTICATED (MISSING / EXPIRED / INVALID / REVOKED)
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	session, err := handler.authService.Refresh(request.Context(), refreshCookie(request))
	if err != nil {
		handler.clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshExpiresAt)
	respond.OK(writer, sessionPayload(session))
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Description: Blacklists the presented access token, deactivates the refresh
cookie (if present) and clears it.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	accessToken, _ := requestutil.BearerToken(request)

	if err := handler.authService.Logout(request.Context(), accessToken, refreshCookie(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
LogoutAll terminates every session of the caller.

POST /api/v1/auth/logout-all

Response:
  - 200: Number of refresh tokens revoked
*/
func (handler *Handler) logoutAll(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	accessToken, _ := requestutil.BearerToken(request)

	revoked, err := handler.authService.LogoutAll(request.Context(), userID, accessToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.OK(writer, map[string]any{FieldRevokedSessions: revoked})
}

/*
Me returns the authenticated account.

GET /api/v1/auth/me
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Me(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, user)
}

// # Cookie Helpers

func sessionPayload(session *LoginSession) map[string]any {
	return map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   TokenType,
		FieldExpiresIn:   int(session.AccessExpiresIn / time.Second),
		FieldUser:        session.User,
	}
}

func refreshCookie(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    value,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
