package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/infrastructure/paymentstack"
	"github.com/orris-inc/paygate/internal/infrastructure/pubsub"
	"github.com/orris-inc/paygate/internal/interfaces/cli/bootstrap"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect fulfillment events",
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Print payment captured events from the Redis channel",
		Long:  `Subscribe to fulfillment.redis_channel and print each event as one JSON line until interrupted.`,
		RunE:  runTail,
	})
	return cmd
}

func runTail(cmd *cobra.Command, args []string) error {
	e, err := bootstrap.Load(env, configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := paymentstack.ConnectRedis(ctx, e.Config)
	if err != nil {
		return err
	}
	defer client.Close()

	out := json.NewEncoder(cmd.OutOrStdout())
	bus := pubsub.NewRedisPaymentEventBus(client, e.Config.Fulfillment.RedisChannel, e.Log.Named("events"))
	err = bus.Subscribe(ctx, func(_ context.Context, event payment.PaymentCapturedEvent) {
		if err := out.Encode(event); err != nil {
			e.Log.Warnw("failed to print event", "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("subscription ended: %w", err)
	}
	return nil
}
