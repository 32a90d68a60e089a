// Package gemini is the Google Gemini inference backend.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/LazarevaL/agro-llm-hack/internal/llm"
)

type Config struct {
	APIKey       string
	Model        string // default gemini-2.5-flash
	Temperature  float32
	Timeout      time.Duration
	ProxyURL     string
	SystemPrompt string
}

type Client struct {
	cfg    Config
	client *genai.Client
	log    *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc, err := llm.NewHTTPClient(cfg.ProxyURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		cfg:    cfg,
		client: client,
		log:    logger.With("provider", "gemini", "model", cfg.Model),
	}, nil
}

// Predict implements llm.Predictor with one GenerateContent call.
func (c *Client) Predict(ctx context.Context, instruction, text string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.predict.start", "req_id", rid, "instruction_len", len(instruction), "text_len", len(text))

	temp := c.cfg.Temperature
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if c.cfg.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(c.cfg.SystemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(llm.UserPrompt(instruction, text)), config)
	if err != nil {
		c.log.Error("llm.predict.error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if isRateLimit(err) {
			return "", fmt.Errorf("gemini: %w: %v", llm.ErrRateLimited, err)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", errors.New("gemini: empty response")
	}
	c.log.Info("llm.predict.ok", "req_id", rid, "output_len", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func isRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}
