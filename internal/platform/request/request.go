// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction, credential
extraction and common body decoding patterns, ensuring consistent error
handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/platform/validate"
)

// ErrMalformedAuthorization is returned for an Authorization header that is
// present but not of the form "Bearer <token>".
var ErrMalformedAuthorization = errors.New("request: malformed authorization header")

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: PAYLOAD_TOO_LARGE when the body cap was crossed,
    validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.PayloadTooLarge(tooLarge.Limit)
		}
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
BearerToken extracts the token from "Authorization: Bearer <token>".

Returns:
  - string: the raw token, empty when no Authorization header is present
  - error: ErrMalformedAuthorization for any other scheme or shape
*/
func BearerToken(request *http.Request) (string, error) {
	header := strings.TrimSpace(request.Header.Get(constants.HeaderAuthorization))
	if header == "" {
		return "", nil
	}

	scheme, credentials, found := strings.Cut(header, " ")
	credentials = strings.TrimSpace(credentials)
	if !found || !strings.EqualFold(scheme, constants.BearerScheme) || credentials == "" || strings.ContainsAny(credentials, " \t") {
		return "", ErrMalformedAuthorization
	}
	return credentials, nil
}

/*
SessionID returns the browser session cookie value, or empty.
*/
func SessionID(request *http.Request) string {
	cookie, err := request.Cookie(constants.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

/*
Principal extracts the authenticated principal from the request context.

Returns nil if the request is not authenticated.
*/
func Principal(request *http.Request) *sec.Principal {
	return ctxutil.GetPrincipal(request.Context())
}

/*
RequiredPrincipal ensures the request is authenticated and returns the principal.

Returns:
  - *sec.Principal: The authenticated identity
  - error: apperr.Unauthenticated if the request is not authenticated
*/
func RequiredPrincipal(request *http.Request) (*sec.Principal, error) {

	// Get the principal
	principal := ctxutil.GetPrincipal(request.Context())

	// If the user is not authenticated, return an error
	if principal == nil {
		return nil, apperr.Unauthenticated("MISSING", "Authentication required")
	}

	return principal, nil
}

/*
RequiredUserID returns the User ID of the currently logged-in user.

Returns:
  - string: User ID
  - error: apperr.Unauthenticated if not authenticated
*/
func RequiredUserID(request *http.Request) (string, error) {

	// Get the principal
	principal, err := RequiredPrincipal(request)

	// If the user is not authenticated, return an error
	if err != nil {
		return "", err
	}

	return principal.UserID, nil
}
