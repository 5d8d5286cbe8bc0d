package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type ClientEnv struct {
	ServerURL      string        `envconfig:"SERVER_URL" default:"http://localhost:3200"`
	PushURL        string        `envconfig:"PUSH_URL"`
	SessionDir     string        `envconfig:"SESSION_DIR" default:".trackline"`
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"3s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
}

type ServerEnv struct {
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	// Tokens accepted by the dev server, comma separated.
	Tokens []string `envconfig:"TOKENS" default:"dev-token"`
}

type Env struct {
	BaseEnv
	ClientEnv
	ServerEnv
}

const namespace = "TRACKLINE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// PushEndpoint is PushURL, or the push path on ServerURL with a ws scheme.
func (e *ClientEnv) PushEndpoint(path string) string {
	if e.PushURL != "" {
		return e.PushURL
	}
	base := strings.TrimSuffix(e.ServerURL, "/")
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest + path
	}
	if rest, ok := strings.CutPrefix(base, "http://"); ok {
		return "ws://" + rest + path
	}
	return base + path
}
