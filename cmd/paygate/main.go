package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/paygate/internal/interfaces/cli/events"
	"github.com/orris-inc/paygate/internal/interfaces/cli/gateways"
	"github.com/orris-inc/paygate/internal/interfaces/cli/migrate"
	"github.com/orris-inc/paygate/internal/interfaces/cli/server"
	"github.com/orris-inc/paygate/internal/interfaces/cli/sweep"
	"github.com/orris-inc/paygate/internal/shared/version"
)

// @title Paygate API
// @version 1.0
// @description Multi-gateway payment processing core.
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	rootCmd := &cobra.Command{
		Use:     "paygate",
		Short:   "Paygate - multi-gateway payment processing",
		Long:    `Paygate starts payments with eSewa, PayU and PayPal, reconciles their callbacks and reminds customers about abandoned checkouts.`,
		Version: version.String(),
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		sweep.NewCommand(),
		gateways.NewCommand(),
		events.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
