// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command gatectl is the operator companion of the aegis gateway.
//
// It reads the same environment as the server, so a token it issues or a
// CSRF token it generates is accepted by a server running with that
// environment.
package main

import (
	"os"

	"github.com/taibuivan/aegis/internal/platform/config"
)

func main() {
	if err := newRootCommand(config.Load).Execute(); err != nil {
		os.Exit(1)
	}
}
