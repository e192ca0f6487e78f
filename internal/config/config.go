// Package config loads amebot configuration from YAML with environment
// overrides. Everything has a default except the bot token and target URL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/code-enforcerr/MyMutualAME/internal/browser"
	"github.com/code-enforcerr/MyMutualAME/internal/scheduler"
)

// Config holds all amebot configuration.
type Config struct {
	Bot     BotConfig      `yaml:"bot"`
	Browser browser.Config `yaml:"browser"`
	Batch   BatchConfig    `yaml:"batch"`
	Output  OutputConfig   `yaml:"output"`
	Logging LoggingConfig  `yaml:"logging"`
}

// BotConfig configures the chat transport.
type BotConfig struct {
	Token         string   `yaml:"token"`
	AllowedUsers  []string `yaml:"allowed_users"`
	AllowListFile string   `yaml:"allow_list_file"`
}

// BatchConfig configures the scheduler.
type BatchConfig struct {
	Concurrency      int `yaml:"concurrency"`
	AttemptTimeoutMs int `yaml:"attempt_timeout_ms"`
	MaxRetries       int `yaml:"max_retries"`
	RetryDelayMs     int `yaml:"retry_delay_ms"`
	MaxRecords       int `yaml:"max_records"`
}

// SchedulerParams converts the ms knobs to scheduler.Params.
func (b BatchConfig) SchedulerParams() scheduler.Params {
	return scheduler.Params{
		Concurrency:    b.Concurrency,
		AttemptTimeout: time.Duration(b.AttemptTimeoutMs) * time.Millisecond,
		MaxRetries:     b.MaxRetries,
		RetryDelay:     time.Duration(b.RetryDelayMs) * time.Millisecond,
	}
}

// OutputConfig configures on-disk results.
type OutputConfig struct {
	Root        string `yaml:"root"`
	HistoryPath string `yaml:"history_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: browser.DefaultConfig(),
		Batch: BatchConfig{
			Concurrency:      3,
			AttemptTimeoutMs: 90000,
			MaxRetries:       2,
			RetryDelayMs:     2000,
			MaxRecords:       70,
		},
		Output: OutputConfig{
			Root:        "output",
			HistoryPath: "output/history.db",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads YAML from path (missing file means defaults) and applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMEBOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("AMEBOT_ALLOWED_USERS"); v != "" {
		c.Bot.AllowedUsers = splitList(v)
	}
	if v := os.Getenv("AMEBOT_TARGET_URL"); v != "" {
		c.Browser.TargetURL = v
	}
	if v := os.Getenv("AMEBOT_OUTPUT_ROOT"); v != "" {
		c.Output.Root = v
	}
	envInt("AMEBOT_CONCURRENCY", &c.Batch.Concurrency)
	envInt("AMEBOT_ATTEMPT_TIMEOUT_MS", &c.Batch.AttemptTimeoutMs)
	envInt("AMEBOT_MAX_RETRIES", &c.Batch.MaxRetries)
	envInt("AMEBOT_RETRY_DELAY_MS", &c.Batch.RetryDelayMs)
	envInt("AMEBOT_MAX_RECORDS", &c.Batch.MaxRecords)
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports startup-fatal problems. Only missing credentials are
// fatal; every other knob has a usable default.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot token is required (AMEBOT_TOKEN or bot.token)")
	}
	if c.Browser.TargetURL == "" {
		return fmt.Errorf("target URL is required (AMEBOT_TARGET_URL or browser.target_url)")
	}
	if len(c.Bot.AllowedUsers) == 0 && c.Bot.AllowListFile == "" {
		return fmt.Errorf("allow list is required (bot.allowed_users or bot.allow_list_file)")
	}
	return nil
}
