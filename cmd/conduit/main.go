package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xavierca1/conduit/internal/app"
	"github.com/xavierca1/conduit/internal/config"
	"github.com/xavierca1/conduit/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "conduit",
		Short:         "Multi-channel lead outreach",
		Long:          "Conduit tracks leads through outreach and delivers messages over email, chat, voice, LinkedIn and ads from a durable job queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCommand(config.RoleAPI, "api", "Serve the HTTP API", (*app.App).RunAPI),
		runCommand(config.RoleWorker, "worker", "Process send-message and generate-ai-reply jobs", (*app.App).RunWorker),
		runCommand(config.RoleDev, "dev", "Run the API and workers in one process (in-memory storage without DATABASE_URL)", (*app.App).RunDev),
		migrateCommand(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCommand(role config.Role, use, short string, run func(*app.App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Env, cfg.LogLevel).With("role", string(role))

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfg, role, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("shutdown", "error", err)
				}
			}()

			log.Info("conduit starting", "env", cfg.Env)
			if err := run(a, ctx); err != nil {
				return err
			}
			log.Info("conduit stopped")
			return nil
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), cfg, logger.New(cfg.Env, cfg.LogLevel))
		},
	}
}
