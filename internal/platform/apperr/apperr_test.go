// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/apperr"
)

/*
TestTaxonomy_StatusCodes verifies each constructor maps to its documented status.
*/
func TestTaxonomy_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *apperr.AppError
		code   string
		status int
	}{
		{"unauthenticated", apperr.Unauthenticated("EXPIRED", "Token expired"), apperr.CodeUnauthenticated, http.StatusUnauthorized},
		{"forbidden", apperr.Forbidden("nope"), apperr.CodeForbidden, http.StatusForbidden},
		{"rate_limited", apperr.RateLimited(30), apperr.CodeRateLimited, http.StatusTooManyRequests},
		{"malicious", apperr.MaliciousInput("email"), apperr.CodeMaliciousInput, http.StatusBadRequest},
		{"validation", apperr.ValidationError("bad"), apperr.CodeValidation, http.StatusBadRequest},
		{"unprocessable", apperr.Unprocessable("bad"), apperr.CodeUnprocessable, http.StatusUnprocessableEntity},
		{"not_found", apperr.NotFound("nothing here"), apperr.CodeNotFound, http.StatusNotFound},
		{"method_not_allowed", apperr.MethodNotAllowed(), apperr.CodeNotAllowed, http.StatusMethodNotAllowed},
		{"conflict", apperr.Conflict("taken"), apperr.CodeConflict, http.StatusConflict},
		{"internal", apperr.Internal(errors.New("boom")), apperr.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

/*
TestRateLimited_RetryAfterFloor ensures the hint is never below one second.
*/
func TestRateLimited_RetryAfterFloor(t *testing.T) {
	assert.Equal(t, 1, apperr.RateLimited(0).RetryAfter)
	assert.Equal(t, 42, apperr.RateLimited(42).RetryAfter)
}

/*
TestAs_TraversesWrappedChain checks extraction through fmt.Errorf wrapping.
*/
func TestAs_TraversesWrappedChain(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", apperr.Forbidden("denied"))

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeForbidden, ae.Code)
	assert.True(t, apperr.IsAppError(wrapped))
	assert.Nil(t, apperr.As(errors.New("plain")))
}
