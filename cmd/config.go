package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/core"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
	pkgredis "github.com/connecteur-digital/chatwidget/pkg/redis"
	pkgsqlite "github.com/connecteur-digital/chatwidget/pkg/sqlite"
)

// AppConfig defines every configurable parameter of the widget backend,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`
	LogFile     string           `envconfig:"LOG_FILE"`

	// Infrastructure
	HTTP   model.HTTPConfig
	Store  model.StoreConfig
	Redis  pkgredis.Config
	SQLite pkgsqlite.Config

	// Conversation engine
	Conversation model.ConversationConfig
}

// loadConfig reads envFile when it exists, then processes the environment.
func loadConfig(envFile string) (AppConfig, error) {
	var cfg AppConfig
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

// initLogging points the process logger at LOG_FILE when set, or at out
// otherwise. A nil out with no LOG_FILE silences logging. The returned func
// closes the log file.
func initLogging(cfg AppConfig, out io.Writer) (func(), error) {
	if cfg.LogFile == "" {
		if out == nil {
			logx.Discard()
			return func() {}, nil
		}
		logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel, Output: out})
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel, Output: f})
	return func() { _ = f.Close() }, nil
}
