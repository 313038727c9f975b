// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package csrf

import (
	"net/http"
	"strings"

	"github.com/taibuivan/aegis/internal/platform/constants"
)

// Policy decides which requests must carry a token.
//
// # Scope
//
// Only state-changing methods (POST, PUT, PATCH, DELETE) on cookie-session
// requests are checked. Bearer-authenticated calls and everything under
// APIPrefix are exempt, since browsers never attach those credentials
// automatically.
type Policy struct {
	// APIPrefix marks token-authenticated API paths (default "/api/").
	APIPrefix string
	// ExemptPaths are matched exactly (login, registration).
	ExemptPaths []string
	// ExemptPrefixes are matched per path segment (webhooks).
	ExemptPrefixes []string
	// SessionCookie names the cookie that identifies a browser session.
	SessionCookie string
}

// DefaultPolicy returns the production exemption set.
func DefaultPolicy() Policy {
	return Policy{
		APIPrefix:      "/api/",
		ExemptPaths:    []string{"/auth/login", "/auth/register"},
		ExemptPrefixes: []string{"/webhooks"},
		SessionCookie:  constants.SessionCookieName,
	}
}

// Requires reports whether request must present a valid token, and the
// session it must be bound to.
func (policy Policy) Requires(request *http.Request) (bool, string) {
	switch request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false, ""
	}

	path := request.URL.Path
	if policy.APIPrefix != "" && strings.HasPrefix(path, policy.APIPrefix) {
		return false, ""
	}
	if policy.Exempt(path) {
		return false, ""
	}

	authorization := request.Header.Get(constants.HeaderAuthorization)
	if scheme, _, found := strings.Cut(authorization, " "); found && strings.EqualFold(scheme, constants.BearerScheme) {
		return false, ""
	}

	cookie, err := request.Cookie(policy.SessionCookie)
	if err != nil || cookie.Value == "" {
		return false, ""
	}
	return true, cookie.Value
}

// Exempt reports whether path is excluded by name or by segment prefix.
// "/webhooks" exempts "/webhooks" and "/webhooks/stripe" but not "/webhooksx".
func (policy Policy) Exempt(path string) bool {
	for _, exact := range policy.ExemptPaths {
		if path == exact {
			return true
		}
	}
	for _, prefix := range policy.ExemptPrefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// TokenFromRequest reads the token from the X-CSRF-Token header, falling back
// to the csrf_token form field for classic form posts.
func TokenFromRequest(request *http.Request) string {
	if token := request.Header.Get(constants.HeaderCSRFToken); token != "" {
		return token
	}
	contentType := request.Header.Get(constants.HeaderContentType)
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return request.PostFormValue(constants.CSRFFormField)
	}
	return ""
}
