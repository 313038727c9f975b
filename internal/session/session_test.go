// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/session"
	"github.com/taibuivan/aegis/internal/trust/csrf"
)

func newHandler(t *testing.T) (http.Handler, *csrf.Guard) {
	t.Helper()
	guard, err := csrf.NewGuard([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return session.NewHandler(guard, true).Routes(), guard
}

func decodeToken(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, constants.HeaderCSRFToken, body.Data["header_name"])
	return body.Data["csrf_token"]
}

/*
TestCSRFToken_NewSession issues a cookie and a token bound to it.
*/
func TestCSRFToken_NewSession(t *testing.T) {
	handler, guard := newHandler(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/csrf", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var sessionCookie *http.Cookie
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.SessionCookieName {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)
	assert.True(t, sessionCookie.Secure)
	assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))

	assert.True(t, guard.Validate(decodeToken(t, recorder), sessionCookie.Value))
}

/*
TestCSRFToken_ExistingSession reuses the presented session.
*/
func TestCSRFToken_ExistingSession(t *testing.T) {
	handler, guard := newHandler(t)

	request := httptest.NewRequest(http.MethodGet, "/csrf", nil)
	request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "sess-42"})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Result().Cookies())

	token := decodeToken(t, recorder)
	assert.True(t, guard.Validate(token, "sess-42"))
	assert.False(t, guard.Validate(token, "sess-43"))
}
