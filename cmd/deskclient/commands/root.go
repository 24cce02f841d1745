package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/deskclient/internal/app"
	"github.com/florianilch/deskclient/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "deskclient",
		Usage: "Service desk API client with automatic session refresh",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to a .env file merged into the environment",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "service desk API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			getCommand(),
			gatewayStartCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// loadEnvFile merges the --env-file into the process environment. Variables
// already set take precedence.
func loadEnvFile(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("env-file")
	if path == "" {
		return ctx, nil
	}
	if err := godotenv.Load(path); err != nil {
		return ctx, fmt.Errorf("loading env file: %w", err)
	}
	return ctx, nil
}

// setup loads the configuration, configures logging and creates the app.
// The returned func flushes telemetry and releases the app's resources.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, func(context.Context) error, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownTelemetry, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.LogExporter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	cleanup := func(ctx context.Context) error {
		return errors.Join(application.Close(), shutdownTelemetry(ctx))
	}
	return application, cleanup, nil
}

// withApp runs fn with a configured app and releases it afterwards.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		application, cleanup, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := cleanup(context.WithoutCancel(ctx)); cerr != nil {
				slog.WarnContext(ctx, "cleanup failed", "error", cerr)
			}
		}()
		return fn(ctx, cmd, application)
	}
}
