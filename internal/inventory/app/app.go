// Package app assembles the inventory service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ehr/inventory-ledger/internal/inventory/events"
	"github.com/ehr/inventory-ledger/internal/inventory/handler"
	"github.com/ehr/inventory-ledger/internal/inventory/migrations"
	"github.com/ehr/inventory-ledger/internal/inventory/repository"
	"github.com/ehr/inventory-ledger/internal/inventory/service"
	"github.com/ehr/inventory-ledger/pkg/config"
	"github.com/ehr/inventory-ledger/pkg/database"
	"github.com/ehr/inventory-ledger/pkg/logger"
	"github.com/ehr/inventory-ledger/pkg/messaging"
)

// ServiceName is stamped on logs and published events.
const ServiceName = "inventory-service"

// Server is the wired HTTP service and the resources it owns.
type Server struct {
	cfg      *config.Config
	logger   *logger.Logger
	db       *database.DB
	rmq      *messaging.RabbitMQ
	recorder *events.Recorder
	http     *http.Server
}

// NewMigrator opens a migrator over the embedded schema.
func NewMigrator(cfg *config.Config, log *logger.Logger) (*database.Migrator, error) {
	return database.NewMigrator(cfg.Database.DSN(), migrations.FS, migrations.Dir, log)
}

// Migrate applies all pending migrations.
func Migrate(cfg *config.Config, log *logger.Logger) error {
	m, err := NewMigrator(cfg, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

// NewServer connects to the database and the audit sink and builds the
// router. Close releases everything NewServer opened.
func NewServer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Database.MigrateOnStart {
		if err := Migrate(cfg, log); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, logger: log, db: db}

	sink, err := s.auditSink(ctx)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}
	s.recorder = events.NewRecorder(sink, cfg.Audit.BufferSize, cfg.Audit.PublishTimeout, log)

	svc := service.NewInventoryService(
		db,
		service.NewRepositories(db),
		s.recorder,
		service.OptionsFromConfig(cfg.Inventory),
		log,
	)

	var broker handler.BrokerHealth
	if s.rmq != nil {
		broker = s.rmq
	}
	router := handler.NewRouter(handler.RouterConfig{
		Service:        svc,
		Health:         handler.NewHealthHandler(ServiceName, db, broker),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// auditSink picks the configured sink. A broker that cannot be reached at
// startup falls back to writing audit rows directly.
func (s *Server) auditSink(ctx context.Context) (events.Sink, error) {
	switch s.cfg.Audit.Sink {
	case config.AuditSinkLog:
		return events.NewLogSink(s.logger), nil
	case config.AuditSinkDatabase:
		return events.NewDatabaseSink(repository.NewAuditEventRepository(s.db)), nil
	}

	rmq, err := messaging.New(ctx, &s.cfg.RabbitMQ, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("RabbitMQ unavailable, writing audit events to the database")
		return events.NewDatabaseSink(repository.NewAuditEventRepository(s.db)), nil
	}
	s.rmq = rmq

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, ServiceName, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit publisher: %w", err)
	}
	return events.NewBrokerSink(publisher, ServiceName), nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	return nil
}

// Close flushes queued audit events and closes connections.
func (s *Server) Close(ctx context.Context) {
	if s.recorder != nil {
		flushCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout())
		if err := s.recorder.Close(flushCtx); err != nil {
			s.logger.Warn().Err(err).Msg("audit events not flushed before shutdown")
		}
		cancel()
		stats := s.recorder.Stats()
		s.logger.Info().
			Uint64("delivered", stats.Delivered).
			Uint64("failed", stats.Failed).
			Uint64("dropped", stats.Dropped).
			Msg("audit recorder closed")
	}
	if s.rmq != nil {
		s.rmq.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}
