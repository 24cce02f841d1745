package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/deskclient/internal/app"
)

func gatewayStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "run the local gateway until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway--host",
				Usage: "gateway host",
				Value: app.DefaultConfigGatewayHost,
			},
			&cli.IntFlag{
				Name:  "gateway--port",
				Usage: "gateway port",
				Value: int(app.DefaultConfigGatewayPort),
			},
			&cli.FloatFlag{
				Name:  "gateway--rate-limit",
				Usage: "requests per second forwarded to the API (0 disables)",
			},
		},
		Action: gatewayStartAction,
	}
}

func gatewayStartAction(ctx context.Context, cmd *cli.Command) error {
	application, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "cleanup failed", "error", err)
		}
	}()

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
