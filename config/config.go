// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/alimasry/go-collab-canvas/server"
)

// DefaultOrigins is used when ALLOWED_ORIGINS is unset.
var DefaultOrigins = []string{"localhost", "127.0.0.1", "*.netlify.app"}

// Config holds every runtime setting.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	AccessPhrase    string
	ViewportMode    server.ViewportMode
	CursorRate      rate.Limit
	CursorBurst     int
	HandshakeRate   rate.Limit
	HandshakeBurst  int
	TrustedProxies  server.TrustedProxies
	RoomIdleTimeout time.Duration
	LogLevel        logrus.Level
	LogFormat       string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads .env if it exists, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset keys.
func FromEnv(lookup LookupFunc) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		Addr:         get("ADDR", ""),
		AccessPhrase: get("ACCESS_PHRASE", ""),
		LogFormat:    get("LOG_FORMAT", "text"),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":" + get("PORT", "3001")
	}

	cfg.AllowedOrigins = DefaultOrigins
	if v := get("ALLOWED_ORIGINS", ""); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	var err error
	if cfg.ViewportMode, err = server.ParseViewportMode(get("VIEWPORT_MODE", "")); err != nil {
		return Config{}, fmt.Errorf("config: VIEWPORT_MODE: %w", err)
	}
	if cfg.LogLevel, err = logrus.ParseLevel(get("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("config: LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}

	if cfg.CursorRate, err = parseRate(get("CURSOR_RATE", "30")); err != nil {
		return Config{}, fmt.Errorf("config: CURSOR_RATE: %w", err)
	}
	if cfg.CursorBurst, err = parseCount(get("CURSOR_BURST", "10")); err != nil {
		return Config{}, fmt.Errorf("config: CURSOR_BURST: %w", err)
	}
	if cfg.HandshakeRate, err = parseRate(get("HANDSHAKE_RATE", "5")); err != nil {
		return Config{}, fmt.Errorf("config: HANDSHAKE_RATE: %w", err)
	}
	if cfg.HandshakeBurst, err = parseCount(get("HANDSHAKE_BURST", "30")); err != nil {
		return Config{}, fmt.Errorf("config: HANDSHAKE_BURST: %w", err)
	}
	if cfg.TrustedProxies, err = server.ParseTrustedProxies(splitList(get("TRUSTED_PROXIES", ""))); err != nil {
		return Config{}, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
	}
	if cfg.RoomIdleTimeout, err = time.ParseDuration(get("ROOM_IDLE_TIMEOUT", "1m")); err != nil {
		return Config{}, fmt.Errorf("config: ROOM_IDLE_TIMEOUT: %w", err)
	}
	if cfg.RoomIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("config: ROOM_IDLE_TIMEOUT: must be positive, got %s", cfg.RoomIdleTimeout)
	}
	return cfg, nil
}

// NewLogger returns a logrus logger configured from cfg.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Origins builds the origin allow-list.
func (c Config) Origins() *server.OriginPolicy {
	return server.NewOriginPolicy(c.AllowedOrigins)
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

// parseRate accepts a non-negative events-per-second value. Zero disables
// the limit.
func parseRate(v string) (rate.Limit, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("negative rate %v", f)
	}
	return rate.Limit(f), nil
}

func parseCount(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", n)
	}
	return n, nil
}
