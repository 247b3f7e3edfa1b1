package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/config"
	"github.com/blockforge/blockforge/internal/ide"
	"github.com/blockforge/blockforge/internal/project"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workspace services headless",
	Long: `Serve starts the workspace services without an editor attached: the
language server manager, the diagnostics bus, and the background task
queue. Useful for smoke-testing a workspace's server configuration.
Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		proj := project.Detect(root)
		logger.Info("workspace detected",
			zap.String("root", proj.Root),
			zap.String("name", proj.Name),
			zap.Stringer("kind", proj.Kind))

		wb := ide.New(cfg, proj, logger)
		if err := wb.Start(cmd.Context()); err != nil {
			return fmt.Errorf("starting workbench: %w", err)
		}

		cfgPath := flagConfig
		if cfgPath == "" {
			cfgPath = filepath.Join(root, config.DefaultFileName)
		}
		watcher, err := config.NewWatcher(cfgPath, func() {
			logger.Info("config file changed; restart to apply", zap.String("path", cfgPath))
		}, logger)
		if err != nil {
			logger.Warn("config watching unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return wb.Shutdown(ctx)
	},
}
