package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/batch"
	"github.com/hyperjump/embedapi/internal/cli"
	"github.com/hyperjump/embedapi/internal/extract"
	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var flags embedFlags
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Embed every file dropped into a spool directory",
		Long: "Watch a directory and embed each new or changed file through a running server.\n" +
			"Results are written beside the input as <file>" + watcher.OutputSuffix + ";\n" +
			"files that already have a result are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := models.ParseBackend(flags.model)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			coord := flags.coordinator(cfg, logger, nil)
			w := watcher.New(args[0], spoolHandler(coord, backend, logger),
				watcher.WithExtensions(cfg.Watch.Extensions),
				watcher.WithDebounce(cfg.Watch.Debounce),
				watcher.WithLogger(logger),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			if err := w.SyncExisting(); err != nil {
				return err
			}
			logger.Info("watching spool directory", zap.String("dir", w.Dir()))
			<-ctx.Done()
			logger.Info("Shutting down...")
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// spoolHandler embeds one spooled file and writes its result file.
func spoolHandler(coord *batch.Coordinator, backend models.Backend, logger *zap.Logger) watcher.Handler {
	return func(ctx context.Context, path string) {
		lines, err := extract.Lines(path)
		if err != nil {
			logger.Warn("spool file unreadable", zap.String("path", path), zap.Error(err))
			return
		}
		if len(lines) == 0 {
			logger.Debug("spool file empty", zap.String("path", path))
			return
		}
		report, err := coord.Run(ctx, lines, backend)
		if err != nil {
			logger.Warn("spool file not embedded", zap.String("path", path), zap.Error(err))
			return
		}
		if report.FailedChunks > 0 {
			// Leave no result so the file is retried on its next change.
			logger.Warn("spool file incomplete, not writing result",
				zap.String("path", path),
				zap.Int("failed_chunks", report.FailedChunks))
			return
		}
		out := watcher.OutputPath(path)
		if err := cli.WriteRecordsFile(out, report.Records); err != nil {
			logger.Warn("spool result not written", zap.String("path", out), zap.Error(err))
			return
		}
		logger.Info("spool file embedded",
			zap.String("path", path),
			zap.Int("records", len(report.Records)),
			zap.Int("failed_items", report.FailedItems))
	}
}
