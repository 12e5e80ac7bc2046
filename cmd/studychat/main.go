package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/studychat/internal/config"
	"github.com/user/studychat/pkg/chatapi"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "studychat",
	Short: "Streaming chat client for the student support backend",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(loadConfig())
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath,
		"config",
		filepath.Join(os.Getenv("HOME"), ".studychat", "config.json"),
		"config file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, exiting on failure. Command RunE
// funcs call this instead of threading the config through cobra.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildClient constructs the backend client from config. A token file
// takes precedence over an inline token so rotated credentials are picked
// up without a restart.
func buildClient(cfg *config.Config) *chatapi.Client {
	var tokens chatapi.TokenSource
	if cfg.Backend.TokenFile != "" {
		tokens = chatapi.FileToken(cfg.Backend.TokenFile)
	} else {
		tokens = chatapi.StaticToken(cfg.Backend.Token)
	}
	return chatapi.New(&chatapi.Config{
		BaseURL:     cfg.Backend.BaseURL,
		Tokens:      tokens,
		IdleTimeout: time.Duration(cfg.Chat.StreamIdleTimeoutSecs) * time.Second,
	})
}
