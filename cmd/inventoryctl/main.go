package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ehr/inventory-ledger/internal/inventory/app"
	"github.com/ehr/inventory-ledger/internal/inventory/consumers"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/pkg/config"
	"github.com/ehr/inventory-ledger/pkg/database"
	"github.com/ehr/inventory-ledger/pkg/idempotency"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/messaging"
)

const cliName = "inventoryctl"

func main() {
	rootCmd := &cobra.Command{
		Use:          cliName,
		Short:        "EHR inventory ledger operations",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(auditConsumerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithValidation(app.ServiceName)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, logger.New(cliName, cfg.Server.Environment), nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the inventory HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			srv, err := app.NewServer(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer srv.Close(context.Background())
			return srv.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(fn func(m *database.Migrator) error) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		m, err := app.NewMigrator(cfg, log)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(m)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *database.Migrator) error { return m.Up() })
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(func(m *database.Migrator) error { return m.Down(steps) })
		},
	}
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withMigrator(func(m *database.Migrator) error { return m.Force(version) })
		},
	})

	return cmd
}

func auditConsumerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-consumer",
		Short: "Persist audit events from RabbitMQ into audit_events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			db, err := database.New(&cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			rmq, err := messaging.New(ctx, &cfg.RabbitMQ, log)
			if err != nil {
				return err
			}
			defer rmq.Close()

			seen, err := idempotency.New(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer seen.Close()

			consumer, err := consumers.NewAuditConsumer(
				rmq,
				repository.NewAuditEventRepository(db),
				seen,
				idempotency.TTL(cfg.Redis),
				log,
			)
			if err != nil {
				return err
			}
			if err := consumer.Start(ctx); err != nil {
				return err
			}

			log.Info().Msg("audit consumer running")
			select {
			case <-ctx.Done():
				<-consumer.Done()
			case <-consumer.Done():
				return errors.New("audit consumer stopped: delivery channel closed")
			}
			log.Info().Msg("audit consumer stopped")
			return nil
		},
	}
}
