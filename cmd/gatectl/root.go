// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"github.com/spf13/cobra"

	"github.com/taibuivan/aegis/internal/platform/config"
)

// configLoader resolves the gateway configuration. Tests swap it for a
// fixed map.
type configLoader func() (*config.Config, error)

func newRootCommand(load configLoader) *cobra.Command {
	root := &cobra.Command{
		Use:   "gatectl",
		Short: "Operator tools for the aegis admission gateway",
		Long: `Operator tools for the aegis admission gateway.

Commands that need secrets (issue-token, verify-token, csrf-token) read them
from the same environment variables as the server.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newHashPasswordCommand(load),
		newIssueTokenCommand(load),
		newVerifyTokenCommand(load),
		newCSRFTokenCommand(load),
		newCheckInputCommand(),
		newRateTableCommand(load),
		newMigrateCommand(load),
	)
	return root
}
