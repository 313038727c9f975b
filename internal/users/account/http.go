// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/aegis/internal/platform/middleware"
	requestutil "github.com/taibuivan/aegis/internal/platform/request"
	"github.com/taibuivan/aegis/internal/platform/respond"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/platform/validate"
	"github.com/taibuivan/aegis/internal/users/auth"
)

// Handler implements the HTTP layer for account security changes.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

// Routes returns the owner endpoints, mounted under /api/v1/account.
//
// # Endpoints
//   - PUT /password : Changes the caller's password and signs out everywhere.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)
	router.Put("/password", handler.changePassword)
	return router
}

// AdminRoutes returns the operator endpoints, mounted under /api/v1/admin.
//
// # Endpoints
//   - POST /users              : Creates an account.
//   - POST /users/{id}/disable : Disables an account and ends its sessions.
//   - POST /users/{id}/enable  : Re-enables an account.
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequirePermission(PermissionManageUsers))

	router.Post("/users", handler.createUser)
	router.Post("/users/{id}/disable", handler.setDisabled(true))
	router.Post("/users/{id}/enable", handler.setDisabled(false))
	return router
}

// # Owner Endpoints

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
PUT /api/v1/account/password.

Description: Verifies the current password, stores the new one and revokes
every refresh token of the account.

Response:
  - 200: {revoked_sessions}
  - 400: VALIDATION_ERROR
  - 401: UNAUTHENTICATED (MISSING / INVALID_CREDENTIALS)
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		MaxLen(FieldCurrentPassword, input.CurrentPassword, auth.MaxPasswordLength).
		MinLen(FieldNewPassword, input.NewPassword, MinPasswordLength).
		MaxLen(FieldNewPassword, input.NewPassword, auth.MaxPasswordLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	revoked, err := handler.accountService.ChangePassword(request.Context(), userID, input.CurrentPassword, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int{auth.FieldRevokedSessions: revoked})
}

// # Operator Endpoints

type createUserRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

/*
POST /api/v1/admin/users.

Request:
  - body: createUserRequest (role defaults to "user")

Response:
  - 201: The created account (without hash)
  - 400: VALIDATION_ERROR / MALICIOUS_INPUT
  - 403: FORBIDDEN (missing users:manage)
  - 409: CONFLICT (email registered)
*/
func (handler *Handler) createUser(writer http.ResponseWriter, request *http.Request) {
	actorID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if input.Role == "" {
		input.Role = sec.RoleUser.String()
	}

	role, roleErr := sec.ParseRole(input.Role)

	validator := &validate.Validator{}
	validator.Required(auth.FieldEmail, input.Email).
		FieldLimit(auth.FieldEmail, input.Email).
		Email(auth.FieldEmail, input.Email).
		MinLen(auth.FieldPassword, input.Password, MinPasswordLength).
		MaxLen(auth.FieldPassword, input.Password, auth.MaxPasswordLength).
		Custom(FieldRole, roleErr != nil, "Must be one of: guest, user, premium, admin")
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.accountService.Create(request.Context(), actorID, CreateInput{
		Email:       input.Email,
		Password:    input.Password,
		Role:        role,
		Permissions: input.Permissions,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
POST /api/v1/admin/users/{id}/disable and /enable.

Response:
  - 200: {user, revoked_sessions}
  - 403: FORBIDDEN (missing users:manage, or disabling oneself)
  - 404: NOT_FOUND
*/
func (handler *Handler) setDisabled(disabled bool) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		actorID, err := requestutil.RequiredUserID(request)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		user, revoked, err := handler.accountService.SetDisabled(request.Context(), actorID, requestutil.Param(request, "id"), disabled)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		respond.OK(writer, map[string]any{
			auth.FieldUser:            user,
			auth.FieldRevokedSessions: revoked,
		})
	}
}
