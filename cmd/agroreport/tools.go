package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LazarevaL/agro-llm-hack/internal/export"
	"github.com/LazarevaL/agro-llm-hack/internal/extract"
	"github.com/LazarevaL/agro-llm-hack/internal/ocr"
	"github.com/LazarevaL/agro-llm-hack/internal/rectify"
	"github.com/LazarevaL/agro-llm-hack/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the operations table if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := repository.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close(logger)
			return repository.Migrate(cmd.Context(), db, logger)
		},
	}
}

func newDBHealthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the database and print the stored row count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := repository.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close(logger)
			if err := repository.HealthCheck(cmd.Context(), db, timeout, logger); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "DB health: OK")

			ops, err := repository.NewOperationRepository(db, logger).ListAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "operations count: %d\n", len(ops))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "ping timeout")
	return cmd
}

func newExportCmd() *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored operations to an XLSX file",
		Long: `Write stored operations to an XLSX file.

Examples:
  agroreport export
  agroreport export --from 2025-09-01 --to 2025-09-30 --out september.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			fromT, err := parseDay(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toT, err := parseDay(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			db, err := repository.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close(logger)

			data, err := export.NewService(repository.NewOperationRepository(db, logger), logger).
				ExportOperationsXLSX(cmd.Context(), fromT, toT)
			if err != nil {
				return err
			}
			if out == "" {
				out = export.FileName(fromT, toT)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&out, "out", "", "output file; defaults to a name built from the window")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var caption string
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the query text the bot would build from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			engine := ocr.NewEngine(ocrConfig(cfg.OCR), logger)
			registry := extract.NewRegistry(engine, rectify.New(rectify.DefaultOptions(), logger), logger)
			res, err := registry.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			fmt.Fprintln(cmd.OutOrStdout(), extract.QueryText(res.Text, caption))
			return nil
		},
	}
	cmd.Flags().StringVar(&caption, "caption", "", "message text sent along with the file")
	return cmd
}

func newRectifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rectify <image>",
		Short: "Write the binarized, perspective-corrected copy of a table photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup()
			if err != nil {
				return err
			}
			out, err := rectify.New(rectify.DefaultOptions(), logger).RectifyFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
