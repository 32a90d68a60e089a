package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Paced wraps a Predictor with the provider's quota etiquette: a rate-limit
// failure waits Backoff and retries once, and every successful call is
// followed by Pause.
type Paced struct {
	next    Predictor
	backoff time.Duration
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     *slog.Logger
}

// PacedOption configures Paced.
type PacedOption func(*Paced)

// WithSleep replaces the context-aware sleep; tests use it to skip real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) PacedOption {
	return func(p *Paced) { p.sleep = fn }
}

func NewPaced(next Predictor, backoff, pause time.Duration, logger *slog.Logger, opts ...PacedOption) *Paced {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Paced{next: next, backoff: backoff, pause: pause, sleep: sleepCtx, log: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Paced) Predict(ctx context.Context, instruction, text string) (string, error) {
	out, err := p.next.Predict(ctx, instruction, text)
	if errors.Is(err, ErrRateLimited) {
		p.log.Warn("llm.rate_limited", "backoff_ms", p.backoff.Milliseconds())
		if serr := p.sleep(ctx, p.backoff); serr != nil {
			return "", serr
		}
		out, err = p.next.Predict(ctx, instruction, text)
	}
	if err != nil {
		return "", err
	}
	if serr := p.sleep(ctx, p.pause); serr != nil {
		return "", serr
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
