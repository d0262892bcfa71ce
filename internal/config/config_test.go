package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)
	req.Equal(":8080", cfg.Server.Addr)
	req.Equal("INFO", cfg.Log.Level)
	req.Equal(DriverBadger, cfg.Store.Driver)
	req.Equal(256, cfg.Chat.SendBuffer)
	req.Equal(5*time.Second, cfg.Chat.StoreTimeout)
	req.Equal(60*time.Second, cfg.Chat.PongWait)
	req.False(cfg.Chat.ErrorFrames)
	req.False(cfg.Auth.Required)
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("CHAT_STORE_TIMEOUT", "250ms")
	t.Setenv("CHAT_ERROR_FRAMES", "true")
	t.Setenv("CHAT_CENSORED_WORDS", "scam, ,fraud")
	t.Setenv("CHAT_CENSOR_CHAR", "#")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("127.0.0.1:9000", cfg.Server.Addr)
	req.Equal(DriverSQLite, cfg.Store.Driver)
	req.Equal(250*time.Millisecond, cfg.Chat.StoreTimeout)
	req.True(cfg.Chat.ErrorFrames)
	req.Equal([]string{"scam", "fraud"}, cfg.Moderation.Words())

	r, err := cfg.Moderation.CensorRune()
	req.NoError(err)
	req.Equal('#', r)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port with space":  {"PORT", "80 80"},
		"unknown driver":   {"STORE_DRIVER", "redis"},
		"long censor char": {"CHAT_CENSOR_CHAR", "**"},
		"bad duration":     {"CHAT_PONG_WAIT", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestNormalizeAddr(t *testing.T) {
	req := require.New(t)
	addr, err := normalizeAddr("3000")
	req.NoError(err)
	req.Equal(":3000", addr)

	addr, err = normalizeAddr(":3000")
	req.NoError(err)
	req.Equal(":3000", addr)
}
