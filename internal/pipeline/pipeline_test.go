// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/pipeline"
	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	"github.com/taibuivan/aegis/internal/trust/csrf"
	"github.com/taibuivan/aegis/internal/trust/ratelimit"
)

const testCSP = "default-src 'self'"

func newGate(t *testing.T, table ratelimit.Table) (*pipeline.Pipeline, *csrf.Guard) {
	t.Helper()
	guard, err := csrf.NewGuard([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	collectors := metrics.New()
	auditor := pipeline.NewAuditor(slog.New(slog.NewTextHandler(io.Discard, nil)), collectors)

	gate := pipeline.NewAdmission(pipeline.Admission{
		MaxBodyBytes: 64,
		Guard:        guard,
		CSRFPolicy:   csrf.DefaultPolicy(),
		Limiter:      ratelimit.New(table),
		Headers:      pipeline.SecurityHeaders{ContentSecurityPolicy: testCSP},
		Auditor:      auditor,
		Metrics:      collectors,
	})
	return gate, guard
}

func generousTable() ratelimit.Table {
	return ratelimit.Table{Default: ratelimit.Class{Name: "default", PerMinute: 1000}}
}

func okHandler(called *int) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		*called++
		writer.WriteHeader(http.StatusOK)
	})
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope
}

func assertSecurityHeaders(t *testing.T, header http.Header) {
	t.Helper()
	assert.Equal(t, "nosniff", header.Get(constants.HeaderContentOptions))
	assert.Equal(t, "DENY", header.Get(constants.HeaderFrameOptions))
	assert.Equal(t, testCSP, header.Get(constants.HeaderCSP))
	assert.Empty(t, header.Get(constants.HeaderHSTS))
	assert.NotEmpty(t, header.Get(constants.HeaderReferrerPolicy))
}

/*
TestAdmission_Order pins the fixed interceptor order.
*/
func TestAdmission_Order(t *testing.T) {
	gate, _ := newGate(t, generousTable())
	assert.Equal(t, []string{"input_validation", "csrf", "rate_limit", "security_headers"}, gate.Interceptors())
}

/*
TestAdmission_Admitted attaches rate limit and security headers.
*/
func TestAdmission_Admitted(t *testing.T) {
	gate, _ := newGate(t, generousTable())
	called := 0

	recorder := httptest.NewRecorder()
	gate.Handler(okHandler(&called)).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/catalog?page=2", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, called)
	assertSecurityHeaders(t, recorder.Header())
	assert.Equal(t, "1000", recorder.Header().Get(constants.HeaderRateLimit))
	assert.Equal(t, "999", recorder.Header().Get(constants.HeaderRateRemaining))
	assert.NotEmpty(t, recorder.Header().Get(constants.HeaderRateReset))
}

/*
TestAdmission_Rejections covers each interceptor's rejection path.
*/
func TestAdmission_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		request func() *http.Request
		status  int
		code    string
	}{
		{
			name: "declared_oversized_body",
			request: func() *http.Request {
				request := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(strings.Repeat("x", 100)))
				request.Header.Set(constants.HeaderContentType, "application/json")
				return request
			},
			status: http.StatusRequestEntityTooLarge,
			code:   apperr.CodePayloadTooLarge,
		},
		{
			name: "missing_content_type",
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader("{}"))
			},
			status: http.StatusBadRequest,
			code:   apperr.CodeValidation,
		},
		{
			name: "unsupported_content_type",
			request: func() *http.Request {
				request := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader("<x/>"))
				request.Header.Set(constants.HeaderContentType, "application/xml")
				return request
			},
			status: http.StatusUnprocessableEntity,
			code:   apperr.CodeUnprocessable,
		},
		{
			name: "malicious_query",
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/catalog?q=1%27%20OR%201%3D1", nil)
			},
			status: http.StatusBadRequest,
			code:   apperr.CodeMaliciousInput,
		},
		{
			name: "csrf_missing",
			request: func() *http.Request {
				request := httptest.NewRequest(http.MethodPost, "/account/settings", nil)
				request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "sess-1"})
				return request
			},
			status: http.StatusForbidden,
			code:   apperr.CodeForbidden,
		},
		{
			name: "csrf_wrong_session",
			request: func() *http.Request {
				request := httptest.NewRequest(http.MethodPost, "/account/settings", nil)
				request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "sess-1"})
				request.Header.Set(constants.HeaderCSRFToken, "sess-2:1:abc")
				return request
			},
			status: http.StatusForbidden,
			code:   apperr.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, _ := newGate(t, generousTable())
			called := 0

			recorder := httptest.NewRecorder()
			gate.Handler(okHandler(&called)).ServeHTTP(recorder, tt.request())

			assert.Equal(t, tt.status, recorder.Code)
			assert.Zero(t, called, "handler must not run after a rejection")
			assert.Equal(t, tt.code, decodeEnvelope(t, recorder)["code"])
			assertSecurityHeaders(t, recorder.Header())
			assert.Empty(t, recorder.Header().Get(constants.HeaderRateLimit), "rate limiter runs after input and CSRF checks")
		})
	}
}

/*
TestAdmission_CSRFValid lets a cookie-session request with a valid token through.
*/
func TestAdmission_CSRFValid(t *testing.T) {
	gate, guard := newGate(t, generousTable())
	called := 0

	request := httptest.NewRequest(http.MethodPost, "/account/settings", nil)
	request.AddCookie(&http.Cookie{Name: constants.SessionCookieName, Value: "sess-1"})
	request.Header.Set(constants.HeaderCSRFToken, guard.Generate("sess-1"))

	recorder := httptest.NewRecorder()
	gate.Handler(okHandler(&called)).ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, called)
}

/*
TestAdmission_RateLimited returns 429 with Retry-After and limit metadata.
*/
func TestAdmission_RateLimited(t *testing.T) {
	gate, _ := newGate(t, ratelimit.Table{Default: ratelimit.Class{Name: "default", PerMinute: 2}})
	handler := gate.Handler(okHandler(new(int)))

	for i := 0; i < 2; i++ {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/catalog", nil))
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/catalog", nil))

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get(constants.HeaderRetryAfter))
	assert.Equal(t, "2", recorder.Header().Get(constants.HeaderRateLimit))
	assert.Equal(t, "0", recorder.Header().Get(constants.HeaderRateRemaining))

	envelope := decodeEnvelope(t, recorder)
	assert.Equal(t, apperr.CodeRateLimited, envelope["code"])
	assert.Equal(t, ratelimit.ReasonMinuteLimit, envelope["reason"])
	assertSecurityHeaders(t, recorder.Header())
}

// downStore fails every call as an unreachable backend would.
type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, error) { return nil, kv.ErrUnavailable }
func (downStore) Put(context.Context, string, []byte, time.Duration) error {
	return kv.ErrUnavailable
}
func (downStore) Delete(context.Context, string) error { return kv.ErrUnavailable }
func (downStore) CompareAndSwap(context.Context, string, []byte, []byte, time.Duration) (bool, error) {
	return false, kv.ErrUnavailable
}

/*
TestAdmission_LimiterStoreDown answers 503 when shared limiter state is unreachable.
*/
func TestAdmission_LimiterStoreDown(t *testing.T) {
	collectors := metrics.New()
	called := 0
	gate := pipeline.NewAdmission(pipeline.Admission{
		MaxBodyBytes: 64,
		CSRFPolicy:   csrf.DefaultPolicy(),
		Limiter:      ratelimit.New(generousTable(), ratelimit.WithStore(ratelimit.NewKVStore(downStore{}))),
		Headers:      pipeline.SecurityHeaders{ContentSecurityPolicy: testCSP},
		Auditor:      pipeline.NewAuditor(slog.New(slog.NewTextHandler(io.Discard, nil)), collectors),
		Metrics:      collectors,
	})

	recorder := httptest.NewRecorder()
	gate.Handler(okHandler(&called)).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/catalog", nil))

	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Zero(t, called)
	assert.Equal(t, apperr.CodeUnavailable, decodeEnvelope(t, recorder)["code"])
	assertSecurityHeaders(t, recorder.Header())
}

/*
TestAdmission_BodyCappedWhenUndeclared fails the decoder once the cap is crossed.
*/
func TestAdmission_BodyCappedWhenUndeclared(t *testing.T) {
	gate, _ := newGate(t, generousTable())

	var readErr error
	handler := gate.Handler(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, readErr = io.ReadAll(request.Body)
	}))

	request := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(strings.Repeat("x", 200)))
	request.ContentLength = -1
	request.Header.Set(constants.HeaderContentType, "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), request)

	var maxBytes *http.MaxBytesError
	assert.True(t, errors.As(readErr, &maxBytes))
}

/*
TestPipeline_DownstreamPanicIsReraised never swallows handler failures.
*/
func TestPipeline_DownstreamPanicIsReraised(t *testing.T) {
	gate, _ := newGate(t, generousTable())
	handler := gate.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/catalog", nil))
	})
}

// recordingInterceptor notes its execution and optionally rejects.
type recordingInterceptor struct {
	name   string
	trace  *[]string
	reject error
}

func (interceptor *recordingInterceptor) Name() string { return interceptor.name }

func (interceptor *recordingInterceptor) Intercept(writer http.ResponseWriter, request *http.Request, next pipeline.Next) error {
	*interceptor.trace = append(*interceptor.trace, interceptor.name)
	if interceptor.reject != nil {
		return interceptor.reject
	}
	return next(writer, request)
}

/*
TestPipeline_StopsAtFirstRejection runs steps in order and nothing after a rejection.
*/
func TestPipeline_StopsAtFirstRejection(t *testing.T) {
	var trace []string
	gate := pipeline.New(nil, nil,
		&recordingInterceptor{name: "first", trace: &trace},
		&recordingInterceptor{name: "second", trace: &trace, reject: apperr.Forbidden("no")},
		&recordingInterceptor{name: "third", trace: &trace},
	)

	called := 0
	recorder := httptest.NewRecorder()
	gate.Handler(okHandler(&called)).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, trace)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Zero(t, called)
}

/*
TestPipeline_PlainErrorsBecomeInternal hides non-taxonomy errors behind a 500.
*/
func TestPipeline_PlainErrorsBecomeInternal(t *testing.T) {
	var trace []string
	gate := pipeline.New(nil, nil, &recordingInterceptor{name: "broken", trace: &trace, reject: errors.New("store exploded")})

	recorder := httptest.NewRecorder()
	gate.Handler(okHandler(new(int))).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "store exploded")
}

/*
TestPipeline_AdmitsOnce skips the gate when the same pipeline is nested.
*/
func TestPipeline_AdmitsOnce(t *testing.T) {
	var trace []string
	gate := pipeline.New(nil, nil, &recordingInterceptor{name: "only", trace: &trace})

	called := 0
	handler := gate.Handler(gate.Handler(okHandler(&called)))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"only"}, trace)
	assert.Equal(t, 1, called)
}
