// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/metrics"
)

/*
TestMetrics_Recorders checks counters through the exposition handler.
*/
func TestMetrics_Recorders(t *testing.T) {
	collectors := metrics.New()

	collectors.Admission("auth", true, "")
	collectors.Admission("auth", false, "minute_limit")
	collectors.PipelineRejection("csrf", "FORBIDDEN")
	collectors.TokenVerification(metrics.OutcomeExpired)
	collectors.ClientBlocked()
	collectors.Swept(3, 1, 0, 2)

	families, err := collectors.Registry().Gather()
	require.NoError(t, err)
	series := 0
	for _, family := range families {
		if family.GetName() == "aegis_ratelimit_admissions_total" {
			series = len(family.GetMetric())
		}
	}
	assert.Equal(t, 2, series)

	recorder := httptest.NewRecorder()
	collectors.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `aegis_pipeline_rejections_total{code="FORBIDDEN",interceptor="csrf"} 1`))
	assert.True(t, strings.Contains(text, `aegis_token_verifications_total{outcome="expired"} 1`))
	assert.True(t, strings.Contains(text, "aegis_ratelimit_blocked_clients 0"))
}

/*
TestMetrics_NilIsNoop allows components to run without metrics.
*/
func TestMetrics_NilIsNoop(t *testing.T) {
	var collectors *metrics.Metrics

	assert.NotPanics(t, func() {
		collectors.Admission("default", true, "")
		collectors.SecurityEvent("csrf_failed", "warn")
		collectors.Swept(1, 1, 1, 1)
	})
	assert.Nil(t, collectors.Registry())
}
