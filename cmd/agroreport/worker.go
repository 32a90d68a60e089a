package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/llm"
	"github.com/LazarevaL/agro-llm-hack/internal/llm/provider"
	"github.com/LazarevaL/agro-llm-hack/internal/pipeline"
	"github.com/LazarevaL/agro-llm-hack/internal/schema"
	"github.com/LazarevaL/agro-llm-hack/internal/transport"
)

func newWorkerCmd() *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the extraction workers, one per inference credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(common.RoleWorker)
			if err != nil {
				return err
			}
			return runWorkers(cmd.Context(), cfg, names, logger)
		},
	}
	cmd.Flags().StringSliceVar(&names, "worker", nil, "run only the named workers (worker_v1, worker_v2, ...); all by default")
	return cmd
}

// selectSpecs keeps the specs named in names, or all of them when names is empty.
func selectSpecs(specs []common.WorkerSpec, names []string) []common.WorkerSpec {
	if len(names) == 0 {
		return specs
	}
	var out []common.WorkerSpec
	for _, s := range specs {
		if slices.Contains(names, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

func runWorkers(ctx context.Context, cfg *common.Config, names []string, logger *slog.Logger) error {
	entities, err := schema.LoadEntities(cfg.Pipeline.EntitiesPath)
	if err != nil {
		return common.NewAppError(common.CodeConfig, "load allowed entities", err)
	}
	validator, err := schema.NewValidator(entities)
	if err != nil {
		return err
	}
	prompts, err := llm.NewPrompts(entities)
	if err != nil {
		return err
	}
	system, err := prompts.System()
	if err != nil {
		return err
	}

	var workers []*transport.Worker
	for _, spec := range selectSpecs(cfg.WorkerSpecs(), names) {
		predictor, err := provider.New(ctx, cfg.LLM, spec, system, logger)
		if err != nil {
			return err
		}
		builder := pipeline.NewBuilder(predictor, prompts, validator, logger.With("worker", spec.Name),
			pipeline.WithMaxRepairs(cfg.Pipeline.MaxRepairs))
		workers = append(workers, transport.NewWorker(spec.Name, cfg.Broker, builder, logger))
	}
	if len(workers) == 0 {
		return common.NewAppError(common.CodeConfig, "no inference credentials selected", common.ErrInvalidInput)
	}
	pool := transport.NewPool(workers, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	health := transport.NewHealthServer(pool.Live, logger)
	logger.Info("worker.start", "workers", len(workers), "queue", cfg.Broker.Queue, "health_addr", lis.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return health.Serve(gctx, lis) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker.stopped")
	return nil
}
