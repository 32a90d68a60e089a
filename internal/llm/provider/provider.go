// Package provider builds the paced inference backend for one worker.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/llm"
	"github.com/LazarevaL/agro-llm-hack/internal/llm/gemini"
	"github.com/LazarevaL/agro-llm-hack/internal/llm/mistral"
)

const (
	Mistral = "mistral"
	Gemini  = "gemini"
)

// New returns the configured backend bound to spec's credential and proxy,
// wrapped with the rate-limit retry and per-call pause.
func New(ctx context.Context, cfg common.LLMConfig, spec common.WorkerSpec, systemPrompt string, logger *slog.Logger) (llm.Predictor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("worker", spec.Name)

	var next llm.Predictor
	switch cfg.Provider {
	case Mistral, "":
		c, err := mistral.NewClient(mistral.Config{
			APIKey:       spec.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.Timeout,
			ProxyURL:     spec.ProxyURL,
			SystemPrompt: systemPrompt,
		}, logger)
		if err != nil {
			return nil, err
		}
		next = c
	case Gemini:
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:       spec.APIKey,
			Model:        cfg.GeminiModel,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.Timeout,
			ProxyURL:     spec.ProxyURL,
			SystemPrompt: systemPrompt,
		}, logger)
		if err != nil {
			return nil, err
		}
		next = c
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown LLM provider %q", cfg.Provider), common.ErrInvalidInput)
	}
	return llm.NewPaced(next, cfg.RateLimitBackoff, cfg.CallPause, logger), nil
}
