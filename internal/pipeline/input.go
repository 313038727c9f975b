// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pipeline

import (
	"mime"
	"net/http"
	"slices"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/trust/sanitize"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// DefaultContentTypes are the media types accepted on requests with a body.
var DefaultContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// InputValidation rejects oversized bodies, unexpected media types and
// query parameters that match the injection battery.
//
// Declared oversized bodies are rejected up front. Undeclared ones are capped
// with [http.MaxBytesReader] so the decoder fails once the limit is crossed.
type InputValidation struct {
	MaxBodyBytes int64
	ContentTypes []string
}

// Name implements [Interceptor].
func (validation *InputValidation) Name() string { return "input_validation" }

// Intercept implements [Interceptor].
func (validation *InputValidation) Intercept(writer http.ResponseWriter, request *http.Request, next Next) error {
	limit := validation.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	if request.ContentLength > limit {
		return apperr.PayloadTooLarge(limit)
	}

	if hasBody(request) {
		if err := validation.checkContentType(request); err != nil {
			return err
		}
		request.Body = http.MaxBytesReader(writer, request.Body, limit)
	}

	for name, values := range request.URL.Query() {
		if malicious, _ := sanitize.DetectInjection(name); malicious {
			return apperr.MaliciousInput("query")
		}
		for _, value := range values {
			if malicious, _ := sanitize.DetectInjection(value); malicious {
				return apperr.MaliciousInput(name)
			}
		}
	}

	return next(writer, request)
}

func (validation *InputValidation) checkContentType(request *http.Request) error {
	raw := request.Header.Get(constants.HeaderContentType)
	if raw == "" {
		return apperr.ValidationError("Content-Type header is required")
	}

	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return apperr.ValidationError("Malformed Content-Type header")
	}

	allowed := validation.ContentTypes
	if len(allowed) == 0 {
		allowed = DefaultContentTypes
	}
	if !slices.Contains(allowed, mediaType) {
		return apperr.Unprocessable("Unsupported media type " + mediaType)
	}
	return nil
}

// hasBody reports whether the request declares or streams a body.
func hasBody(request *http.Request) bool {
	if request.Body == nil || request.Body == http.NoBody {
		return false
	}
	return request.ContentLength != 0
}
