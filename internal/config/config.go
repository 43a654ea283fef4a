package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Move store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Identity verification modes.
const (
	IdentityJWT    = "jwt"
	IdentityRemote = "remote"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	MoveStore     string
	DatabaseURL   string
	RedisURL      string
	RedisMovesKey string
	AutoMigrate   bool

	IdentityMode    string
	JWTSecret       string
	IdentityURL     string
	IdentityTimeout time.Duration

	SendBuffer int

	BotEnabled        bool
	BotMoveDelay      time.Duration
	// BotEnginePath points at a UCI engine binary; empty means random legal moves.
	BotEnginePath     string
	BotEngineMoveTime time.Duration
	BotSkillLevel     int

	ArchiveEnabled bool
	MessagesDir    string
}

// Load reads the environment, seeded from ./.env when the file exists.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the config from an arbitrary lookup func so tests don't touch the process env.
func FromLookup(lookup func(string) (string, bool)) (*AppConfig, error) {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}

	cfg := &AppConfig{
		ListenAddr:        ":8080",
		RedisMovesKey:     "session:current_game",
		AutoMigrate:       true,
		IdentityMode:      IdentityJWT,
		IdentityTimeout:   5 * time.Second,
		SendBuffer:        64,
		BotEnabled:        true,
		BotMoveDelay:      750 * time.Millisecond,
		BotEngineMoveTime: 300 * time.Millisecond,
		BotSkillLevel:     5,
		ArchiveEnabled:    true,
	}

	if v := get("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowedOrigins = splitList(get("WS_ALLOWED_ORIGINS"))

	cfg.DatabaseURL = get("DATABASE_URL")
	cfg.RedisURL = get("REDIS_URL")
	if v := get("REDIS_MOVES_KEY"); v != "" {
		cfg.RedisMovesKey = v
	}
	cfg.MoveStore = strings.ToLower(get("MOVE_STORE"))
	if cfg.MoveStore == "" {
		if cfg.DatabaseURL != "" {
			cfg.MoveStore = StorePostgres
		} else {
			cfg.MoveStore = StoreMemory
		}
	}
	if v := get("AUTO_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AutoMigrate = b
		}
	}

	if v := strings.ToLower(get("IDENTITY_MODE")); v != "" {
		cfg.IdentityMode = v
	}
	cfg.JWTSecret = get("JWT_ACCESS_SECRET")
	cfg.IdentityURL = get("IDENTITY_URL")
	if v := get("IDENTITY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid IDENTITY_TIMEOUT %q", v)
		}
		cfg.IdentityTimeout = d
	}

	if v := get("SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendBuffer = n
		}
	}

	if v := get("BOT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.BotEnabled = b
		}
	}
	if v := get("BOT_MOVE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid BOT_MOVE_DELAY %q", v)
		}
		cfg.BotMoveDelay = d
	}

	cfg.BotEnginePath = get("BOT_ENGINE_PATH")
	if v := get("BOT_ENGINE_MOVETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid BOT_ENGINE_MOVETIME %q", v)
		}
		cfg.BotEngineMoveTime = d
	}
	if v := get("BOT_SKILL_LEVEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 20 {
			return nil, fmt.Errorf("invalid BOT_SKILL_LEVEL %q (0-20)", v)
		}
		cfg.BotSkillLevel = n
	}

	if v := get("ARCHIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ArchiveEnabled = b
		}
	}
	cfg.MessagesDir = get("MESSAGES_DIR")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.MoveStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for MOVE_STORE=postgres")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for MOVE_STORE=redis")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown MOVE_STORE %q", c.MoveStore)
	}

	switch c.IdentityMode {
	case IdentityJWT:
		if c.JWTSecret == "" {
			return errors.New("JWT_ACCESS_SECRET is required for IDENTITY_MODE=jwt")
		}
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for IDENTITY_MODE=jwt (users lookup)")
		}
	case IdentityRemote:
		if c.IdentityURL == "" {
			return errors.New("IDENTITY_URL is required for IDENTITY_MODE=remote")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_MODE %q", c.IdentityMode)
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
