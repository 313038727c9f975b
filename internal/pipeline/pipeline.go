// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package pipeline is the admission gate wrapped around every inbound request.

# Ordering

Interceptors run in a fixed order, each deciding whether to call the next:

 1. [InputValidation]: body size, content type, query injection scan.
 2. [CSRFCheck]: anti-forgery token for cookie-session state changes.
 3. [RateLimit]: sliding window admission per client and endpoint class.
 4. [SecurityHeaders]: response hardening headers.

An interceptor rejects by returning an error. The [Pipeline] turns it into
the JSON error envelope, stamps the security headers so they are present on
rejections too, records metrics and emits an audit event. Nothing after a
rejection runs.

# Failures Downstream

Route handlers run inside the last interceptor's next call. A panic there is
logged with the request context and re-raised, the pipeline never swallows
it.

A request passes a given pipeline at most once. Wrapping a route group and the
router's not-found handler with the same pipeline does not count a request
twice.
*/
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	"github.com/taibuivan/aegis/internal/platform/respond"
)

// Next continues the chain with the (possibly rewritten) request.
type Next func(writer http.ResponseWriter, request *http.Request) error

// Interceptor is one admission step.
type Interceptor interface {
	// Name identifies the interceptor in logs and metrics.
	Name() string

	// Intercept either rejects by returning an error or calls next.
	Intercept(writer http.ResponseWriter, request *http.Request, next Next) error
}

// headerStamper is implemented by interceptors whose headers must be present
// on every response, including rejections from earlier steps.
type headerStamper interface {
	Apply(header http.Header)
}

// Pipeline composes interceptors in the order given to [New].
type Pipeline struct {
	interceptors []Interceptor
	stampers     []headerStamper
	auditor      *Auditor
	metrics      *metrics.Metrics
}

// New returns a pipeline running interceptors in order. Use [NewAdmission]
// for the standard gate.
func New(auditor *Auditor, collectors *metrics.Metrics, interceptors ...Interceptor) *Pipeline {
	pipeline := &Pipeline{
		interceptors: interceptors,
		auditor:      auditor,
		metrics:      collectors,
	}
	for _, interceptor := range interceptors {
		if stamper, ok := interceptor.(headerStamper); ok {
			pipeline.stampers = append(pipeline.stampers, stamper)
		}
	}
	return pipeline
}

// Interceptors returns the names of the steps in execution order.
func (pipeline *Pipeline) Interceptors() []string {
	names := make([]string, len(pipeline.interceptors))
	for index, interceptor := range pipeline.interceptors {
		names[index] = interceptor.Name()
	}
	return names
}

// rejection ties an error to the interceptor that produced it.
type rejection struct {
	interceptor string
	err         error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

// admittedKey marks a request that already passed a pipeline.
type admittedKey struct{}

// Handler wraps next with the pipeline.
func (pipeline *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Context().Value(admittedKey{}) == pipeline {
			next.ServeHTTP(writer, request)
			return
		}
		request = request.WithContext(context.WithValue(request.Context(), admittedKey{}, pipeline))

		defer pipeline.repanic(request)

		final := func(writer http.ResponseWriter, request *http.Request) error {
			next.ServeHTTP(writer, request)
			return nil
		}

		err := pipeline.step(0, final)(writer, request)
		if err == nil {
			return
		}

		interceptor := ""
		var rejected *rejection
		if errors.As(err, &rejected) {
			interceptor = rejected.interceptor
			err = rejected.err
		}
		pipeline.reject(writer, request, interceptor, err)
	})
}

// step builds the Next for the interceptor at index.
func (pipeline *Pipeline) step(index int, final Next) Next {
	if index == len(pipeline.interceptors) {
		return final
	}

	interceptor := pipeline.interceptors[index]
	return func(writer http.ResponseWriter, request *http.Request) error {
		err := interceptor.Intercept(writer, request, pipeline.step(index+1, final))
		if err == nil {
			return nil
		}

		// Keep the innermost origin when an error bubbles through outer steps.
		var rejected *rejection
		if errors.As(err, &rejected) {
			return err
		}
		return &rejection{interceptor: interceptor.Name(), err: err}
	}
}

func (pipeline *Pipeline) reject(writer http.ResponseWriter, request *http.Request, interceptor string, err error) {
	appError := apperr.As(err)
	if appError == nil {
		appError = apperr.Internal(err)
	}

	header := writer.Header()
	for _, stamper := range pipeline.stampers {
		stamper.Apply(header)
	}

	pipeline.metrics.PipelineRejection(interceptor, appError.Code)
	pipeline.auditor.Rejected(request, interceptor, appError)
	respond.Error(writer, request, appError)
}

// repanic logs a downstream panic and re-raises it for the outer recovery.
func (pipeline *Pipeline) repanic(request *http.Request) {
	recovered := recover()
	if recovered == nil {
		return
	}
	if recovered != http.ErrAbortHandler {
		ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "pipeline_downstream_panic",
			slog.Any("panic", recovered),
		)
	}
	panic(recovered)
}
