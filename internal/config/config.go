// Package config loads the environment configuration recognized in §6,
// following the teacher's plain-struct-plus-IsValid pattern (server/configuration.go)
// rather than a reflection-based env-binding library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider selects which Agent Runtime backend to dial.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderMock      LLMProvider = "mock"
)

// Config is the orchestrator's full environment configuration.
type Config struct {
	AppID             string
	AppPrivateKey     string
	GitHubToken       string
	WebhookSecret     string
	BusURL            string
	DBURL             string
	LLMProvider       LLMProvider
	LLMModel          string
	LLMAPIKey         string
	LLMTokenBudget    int
	MaxConcurrentWorkflows int
	MaxAgentsPerWorkflow   int
	DebounceMs             int

	ListenAddr string
	DevMode    bool
}

// Clone shallow-copies the configuration, matching the teacher's
// (*configuration).Clone used for lock-free reads of a snapshot.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// DebounceWindow returns DebounceMs as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// IsValid checks that required configuration is present and well-formed,
// mirroring (*configuration).IsValid in the teacher.
func (c *Config) IsValid() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	switch c.LLMProvider {
	case LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderMock:
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of openai|anthropic|mock, got %q", c.LLMProvider)
	}
	if c.MaxConcurrentWorkflows < 1 {
		return fmt.Errorf("MAX_CONCURRENT_WORKFLOWS must be at least 1, got %d", c.MaxConcurrentWorkflows)
	}
	if c.MaxAgentsPerWorkflow < 1 {
		return fmt.Errorf("MAX_AGENTS_PER_WORKFLOW must be at least 1, got %d", c.MaxAgentsPerWorkflow)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("DEBOUNCE_MS must be non-negative, got %d", c.DebounceMs)
	}
	return nil
}

// Load reads the recognized environment keys, applying the recommended
// defaults from spec.md §2/§4.3/§4.2 where the variable is unset.
func Load() (*Config, error) {
	cfg := &Config{
		AppID:                  os.Getenv("APP_ID"),
		AppPrivateKey:          os.Getenv("APP_PRIVATE_KEY"),
		GitHubToken:            os.Getenv("GITHUB_TOKEN"),
		WebhookSecret:          os.Getenv("WEBHOOK_SECRET"),
		BusURL:                 envOr("BUS_URL", "nats://127.0.0.1:4222"),
		DBURL:                  os.Getenv("DB_URL"),
		LLMProvider:            LLMProvider(envOr("LLM_PROVIDER", string(LLMProviderMock))),
		LLMModel:               envOr("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:              os.Getenv("LLM_API_KEY"),
		LLMTokenBudget:         envIntOr("LLM_TOKEN_BUDGET", 100000),
		MaxConcurrentWorkflows: envIntOr("MAX_CONCURRENT_WORKFLOWS", 64),
		MaxAgentsPerWorkflow:   envIntOr("MAX_AGENTS_PER_WORKFLOW", 4),
		DebounceMs:             envIntOr("DEBOUNCE_MS", 3000),
		ListenAddr:             envOr("LISTEN_ADDR", ":8080"),
		DevMode:                strings.EqualFold(os.Getenv("DEV_MODE"), "true"),
	}

	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
