package sweep

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orris-inc/paygate/internal/infrastructure/database"
	"github.com/orris-inc/paygate/internal/infrastructure/paymentstack"
	"github.com/orris-inc/paygate/internal/interfaces/cli/bootstrap"
)

var (
	env        string
	configPath string
	withExpiry bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the abandoned-payment recovery sweep once",
		Long: `Send recovery reminders for payments left pending past the reminder threshold.
Prints the sweep report as YAML. With --expire, overdue transactions are expired first.`,
		RunE: run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().BoolVar(&withExpiry, "expire", false, "Expire overdue transactions before sweeping")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	e, err := bootstrap.Load(env, configPath)
	if err != nil {
		return err
	}
	if err := e.OpenDatabase(); err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	var redisClient *redis.Client
	if paymentstack.NeedsRedis(e.Config) {
		redisClient, err = paymentstack.ConnectRedis(ctx, e.Config)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	stack, err := paymentstack.Build(e.Config, database.Get(), redisClient, nil, e.Log)
	if err != nil {
		return err
	}
	defer stack.Close()

	if withExpiry {
		n, err := stack.Expire.Execute(ctx)
		if err != nil {
			return fmt.Errorf("expiry failed: %w", err)
		}
		e.Log.Infow("expired overdue transactions", "count", n)
	}

	report, err := stack.RecoverySweep.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(report)
}
