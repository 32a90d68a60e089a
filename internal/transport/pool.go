package transport

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Pool supervises several named workers in one process. The first worker
// to fail stops the others.
type Pool struct {
	workers []*Worker
	log     *slog.Logger
}

func NewPool(workers []*Worker, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{workers: workers, log: logger}
}

func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				p.log.Error("pool.worker.failed", "worker", w.Name(), "error", err)
				return err
			}
			return nil
		})
	}
	p.log.Info("pool.started", "workers", len(p.workers))
	return g.Wait()
}

// Live reports whether every worker is consuming.
func (p *Pool) Live() bool {
	if len(p.workers) == 0 {
		return false
	}
	for _, w := range p.workers {
		if !w.Live() {
			return false
		}
	}
	return true
}
