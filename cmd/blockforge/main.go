package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blockforge/blockforge/internal/config"
)

var (
	// Version is set at build time.
	Version = "dev"

	flagWorkspace string
	flagConfig    string
	flagLogLevel  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blockforge",
		Short: "Minecraft mod and datapack authoring tooling",
		Long: `Blockforge is the service core of a Minecraft mod authoring environment:
project detection, language server management, and workspace diagnostics.
The editor runs these services in-process; this binary exposes the
tooling and diagnostic entry points.`,
	}

	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default <workspace>/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("blockforge version: %s\n", Version)
	},
}

// loadConfig resolves the workspace root and loads its configuration,
// applying the --log-level override.
func loadConfig() (string, *config.Config, error) {
	root, err := filepath.Abs(flagWorkspace)
	if err != nil {
		return "", nil, fmt.Errorf("resolving workspace: %w", err)
	}

	path := flagConfig
	if path == "" {
		path = filepath.Join(root, config.DefaultFileName)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return root, cfg, nil
}

// newLogger builds a console logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
