package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkalas/sessionkeeper/internal/adapters/gateway"
	tomlrepo "github.com/mkalas/sessionkeeper/internal/adapters/repo/toml"
	"github.com/mkalas/sessionkeeper/internal/application"
	"github.com/mkalas/sessionkeeper/internal/ports"
	"github.com/spf13/viper"
)

const configDirName = ".sessionkeeper"

type app struct {
	config  *viper.Viper
	gateway ports.SessionGateway
	state   ports.StateRepository
	clock   ports.Clock
	logger  *slog.Logger
	home    string
}

func wireApp() (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := loadConfig(homeDir)
	if err != nil {
		return nil, err
	}

	state, err := tomlrepo.NewStateRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire state repository: %w", err)
	}

	return &app{
		config:  cfg,
		gateway: gateway.NewClient(cfg.GetString("gateway.base_url"), cfg.GetDuration("gateway.timeout")),
		state:   state,
		clock:   ports.SystemClock{},
		logger:  newLogger(cfg.GetString("log.level")),
		home:    homeDir,
	}, nil
}

func loadConfig(homeDir string) (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigName("config")
	cfg.SetConfigType("toml")
	cfg.AddConfigPath(filepath.Join(homeDir, configDirName))
	cfg.SetEnvPrefix("SK")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetDefault("gateway.base_url", "http://127.0.0.1:7171")
	cfg.SetDefault("gateway.timeout", 10*time.Second)
	cfg.SetDefault("rotation.threshold_tokens", 150_000)
	cfg.SetDefault("rotation.exclude", []string{})
	cfg.SetDefault("rotation.commands_per_second", 2.0)
	cfg.SetDefault("checkpoint.stale_after", 4*time.Hour)
	cfg.SetDefault("checkpoint.min_transcript_bytes", 512)
	cfg.SetDefault("checkpoint.tail_lines", 200)
	cfg.SetDefault("checkpoint.budget", 5*time.Minute)
	cfg.SetDefault("disclosure.threshold_bytes", application.DefaultDisclosureThreshold)
	cfg.SetDefault("agents.path", filepath.Join(homeDir, configDirName, "agents.yaml"))
	cfg.SetDefault("transcripts.dir", filepath.Join(homeDir, configDirName, "transcripts"))
	cfg.SetDefault("state.path", filepath.Join(homeDir, configDirName, "state.toml"))
	cfg.SetDefault("log.level", "info")

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

func (a *app) checkpointConfig() application.CheckpointConfig {
	cfg := application.DefaultCheckpointConfig()
	cfg.StaleAfter = a.config.GetDuration("checkpoint.stale_after")
	cfg.MinTranscriptBytes = a.config.GetInt64("checkpoint.min_transcript_bytes")
	cfg.TailLines = a.config.GetInt("checkpoint.tail_lines")
	return cfg
}

func (a *app) rotationConfig() application.RotationConfig {
	return application.RotationConfig{
		ThresholdTokens:   a.config.GetInt64("rotation.threshold_tokens"),
		ExcludePatterns:   a.config.GetStringSlice("rotation.exclude"),
		CommandsPerSecond: a.config.GetFloat64("rotation.commands_per_second"),
	}
}
