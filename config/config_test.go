package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/alimasry/go-collab-canvas/server"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.Addr)
	assert.Equal(t, DefaultOrigins, cfg.AllowedOrigins)
	assert.Empty(t, cfg.AccessPhrase)
	assert.Equal(t, server.ViewportLocal, cfg.ViewportMode)
	assert.Equal(t, rate.Limit(30), cfg.CursorRate)
	assert.Equal(t, 10, cfg.CursorBurst)
	assert.Equal(t, rate.Limit(5), cfg.HandshakeRate)
	assert.Equal(t, 30, cfg.HandshakeBurst)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Equal(t, time.Minute, cfg.RoomIdleTimeout)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":              "8080",
		"ALLOWED_ORIGINS":   " https://app.example.com , *.netlify.app,, ",
		"ACCESS_PHRASE":     "open sesame",
		"VIEWPORT_MODE":     "shared",
		"CURSOR_RATE":       "0",
		"CURSOR_BURST":      "1",
		"HANDSHAKE_RATE":    "2.5",
		"TRUSTED_PROXIES":   "10.0.0.0/8, 192.168.1.1",
		"ROOM_IDLE_TIMEOUT": "30s",
		"LOG_LEVEL":         "debug",
		"LOG_FORMAT":        "json",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, []string{"https://app.example.com", "*.netlify.app"}, cfg.AllowedOrigins)
	assert.Equal(t, "open sesame", cfg.AccessPhrase)
	assert.Equal(t, server.ViewportShared, cfg.ViewportMode)
	assert.Equal(t, rate.Limit(0), cfg.CursorRate)
	assert.Equal(t, rate.Limit(2.5), cfg.HandshakeRate)
	require.Len(t, cfg.TrustedProxies, 2)
	assert.Equal(t, "192.168.1.1/32", cfg.TrustedProxies[1].String())
	assert.Equal(t, 30*time.Second, cfg.RoomIdleTimeout)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)

	log := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	assert.True(t, cfg.Origins().Allow("https://app.example.com"))
	assert.False(t, cfg.Origins().Allow("http://localhost"))
}

func TestFromEnv_AddrWinsOverPort(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"ADDR": "127.0.0.1:9000", "PORT": "8080"}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"viewport":          {"VIEWPORT_MODE": "sideways"},
		"log level":         {"LOG_LEVEL": "loud"},
		"log format":        {"LOG_FORMAT": "xml"},
		"cursor rate":       {"CURSOR_RATE": "fast"},
		"negative rate":     {"HANDSHAKE_RATE": "-1"},
		"zero burst":        {"HANDSHAKE_BURST": "0"},
		"non-numeric burst": {"CURSOR_BURST": "many"},
		"trusted proxy":     {"TRUSTED_PROXIES": "10.0.0.0/8,proxy.local"},
		"idle timeout":      {"ROOM_IDLE_TIMEOUT": "soon"},
		"zero idle timeout": {"ROOM_IDLE_TIMEOUT": "0s"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(env(vars))
			assert.Error(t, err)
		})
	}
}
