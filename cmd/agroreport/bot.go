package main

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
	"github.com/LazarevaL/agro-llm-hack/internal/extract"
	"github.com/LazarevaL/agro-llm-hack/internal/ocr"
	"github.com/LazarevaL/agro-llm-hack/internal/rectify"
	"github.com/LazarevaL/agro-llm-hack/internal/repository"
	"github.com/LazarevaL/agro-llm-hack/internal/telegram"
	"github.com/LazarevaL/agro-llm-hack/internal/transport"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram front-end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(common.RoleBot)
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg, logger)
		},
	}
}

func runBot(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	logger = logger.With("component", "bot")

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close(logger)
	if err := repository.Migrate(ctx, db, logger); err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return common.NewAppError(common.CodeConfig, "telegram login", err)
	}
	logger.Info("bot.authorized", "username", api.Self.UserName)

	engine := ocr.NewEngine(ocrConfig(cfg.OCR), logger)
	registry := extract.NewRegistry(engine, rectify.New(rectify.DefaultOptions(), logger), logger)
	gateway := transport.NewGateway(cfg.Broker, logger)
	handler := telegram.NewHandler(cfg.Telegram, api, gateway, registry, repository.NewOperationRepository(db, logger), logger)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	start := time.Now()
	err = handler.Run(ctx, updates)
	logger.Info("bot.stopped", "uptime", time.Since(start).Round(time.Second).String())
	return err
}

func ocrConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Tesseract:     c.Tesseract,
		TesseractLang: c.TesseractLang,
		TessdataDir:   c.TessdataDir,
		PSM:           c.PSM,
		Pdftoppm:      c.Pdftoppm,
		DPI:           c.DPI,
		MaxPages:      c.MaxPages,
		Soffice:       c.Soffice,
	}
}
