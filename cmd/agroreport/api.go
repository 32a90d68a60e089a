package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/export"
	"github.com/LazarevaL/agro-llm-hack/internal/repository"
	"github.com/LazarevaL/agro-llm-hack/internal/server"
)

func newAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve stored operations over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(common.RoleAPI)
			if err != nil {
				return err
			}
			return runAPI(cmd.Context(), cfg, logger)
		},
	}
}

func runAPI(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close(logger)
	if err := repository.Migrate(ctx, db, logger); err != nil {
		return err
	}

	repo := repository.NewOperationRepository(db, logger)
	handler := server.NewHandler(server.Deps{
		Operations: repo,
		Exporter:   export.NewService(repo, logger),
		Ping: func(ctx context.Context) error {
			return repository.HealthCheck(ctx, db, 2*time.Second, logger)
		},
		Logger: logger,
	})
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api.listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("api.shutdown")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
