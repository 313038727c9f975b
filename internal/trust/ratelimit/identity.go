// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/taibuivan/aegis/internal/platform/constants"
)

// ClientIP resolves the client identity used as the limiter key.
//
// Precedence: first entry of X-Forwarded-For, then X-Real-IP, then the
// transport peer address.
//
// # Security
//
// Forwarded headers are trusted as-is. Deploy behind a proxy that overwrites
// them, otherwise a client can rotate its identity per request.
func ClientIP(request *http.Request) string {
	if forwarded := request.Header.Get(constants.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(request.Header.Get(constants.HeaderXRealIP)); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
