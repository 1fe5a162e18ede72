package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	// SigningKey verifies naming tokens. Tokens are ignored when it is nil.
	SigningKey []byte

	Store       string
	DatabaseDSN string
	RedisURL    string

	Sync SyncConfig
}

// SyncConfig holds the timing and limits of the sync engine.
type SyncConfig struct {
	// IdleTimeout is how long a session may go without inbound traffic
	// before it is evicted.
	IdleTimeout      time.Duration
	SweepInterval    time.Duration
	AutoSaveInterval time.Duration
	// RoomIdleTimeout is how long an empty room stays loaded.
	RoomIdleTimeout time.Duration
	MessageRate     float64
	MessageBurst    int
}

type Params struct {
	ServerAddr     string
	AllowedOrigins []string
	SigningSecret  string
	Store          string
	DatabaseDSN    string
	RedisURL       string
	Sync           SyncConfig
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		IdleTimeout:      90 * time.Second,
		SweepInterval:    10 * time.Second,
		AutoSaveInterval: 60 * time.Second,
		RoomIdleTimeout:  5 * time.Second,
		MessageRate:      50,
		MessageBurst:     100,
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	store := p.Store
	if store == "" {
		store = StoreMemory
	}

	switch store {
	case StoreMemory:
	case StorePostgres:
		if p.DatabaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreRedis:
		if p.RedisURL == "" {
			return nil, fmt.Errorf("redis URL cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unknown store %q", store)
	}

	if err := p.Sync.validate(); err != nil {
		return nil, err
	}

	var signingKey []byte
	if p.SigningSecret != "" {
		key, err := decodeSigningSecret(p.SigningSecret)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		signingKey = key
	}

	return &Config{
		ServerAddr:     p.ServerAddr,
		AllowedOrigins: p.AllowedOrigins,
		SigningKey:     signingKey,
		Store:          store,
		DatabaseDSN:    p.DatabaseDSN,
		RedisURL:       p.RedisURL,
		Sync:           p.Sync,
	}, nil
}

func (c SyncConfig) validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.SweepInterval > c.IdleTimeout {
		return fmt.Errorf("sweep interval %s exceeds idle timeout %s", c.SweepInterval, c.IdleTimeout)
	}
	if c.AutoSaveInterval <= 0 {
		return fmt.Errorf("auto-save interval must be positive")
	}
	if c.RoomIdleTimeout <= 0 {
		return fmt.Errorf("room idle timeout must be positive")
	}
	if c.MessageRate <= 0 || c.MessageBurst <= 0 {
		return fmt.Errorf("message rate and burst must be positive")
	}
	return nil
}
