package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// Config aggregates every setting of the chat server.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Chat       ChatConfig
	Store      StoreConfig
	Auth       AuthConfig
	Moderation ModerationConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverBadger
	}
	switch cfg.Store.Driver {
	case DriverMemory, DriverBadger, DriverSQLite, DriverMongo:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Store.Driver)
	}

	if _, err := cfg.Moderation.CensorRune(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
}

// normalizeAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"INFO"`
}

// ChatConfig tunes the hub and the WebSocket transport.
type ChatConfig struct {
	SendBuffer         int           `env:"CHAT_SEND_BUFFER" envDefault:"256"`
	StoreTimeout       time.Duration `env:"CHAT_STORE_TIMEOUT" envDefault:"5s"`
	WriteTimeout       time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"10s"`
	PongWait           time.Duration `env:"CHAT_PONG_WAIT" envDefault:"60s"`
	MaxFrameBytes      int64         `env:"CHAT_MAX_FRAME_BYTES" envDefault:"8192"`
	MaxFramesPerSecond int           `env:"CHAT_MAX_FRAMES_PER_SECOND" envDefault:"20"`
	MaxTextLength      int           `env:"CHAT_MAX_TEXT_LENGTH" envDefault:"2000"`
	ErrorFrames        bool          `env:"CHAT_ERROR_FRAMES" envDefault:"false"`
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver        string `env:"STORE_DRIVER" envDefault:"badger"`
	BadgerPath    string `env:"BADGER_PATH" envDefault:"./data/badger"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/chat.db"`
	MongoURL      string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"reactshop"`
}

// AuthConfig enables token verification at the handshake when Secret is set.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	Required  bool   `env:"AUTH_REQUIRED" envDefault:"false"`
}

type ModerationConfig struct {
	CensoredWords []string `env:"CHAT_CENSORED_WORDS" envSeparator:","`
	CensorChar    string   `env:"CHAT_CENSOR_CHAR" envDefault:"*"`
}

// Words returns the censored words without blanks.
func (c ModerationConfig) Words() []string {
	words := make([]string, 0, len(c.CensoredWords))
	for _, w := range c.CensoredWords {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// CensorRune returns the replacement character, which must be exactly one rune.
func (c ModerationConfig) CensorRune() (rune, error) {
	r := []rune(c.CensorChar)
	if len(r) != 1 {
		return 0, fmt.Errorf("CHAT_CENSOR_CHAR must be a single character, got %q", c.CensorChar)
	}
	return r[0], nil
}
