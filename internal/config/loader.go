package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MMAKER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MMAKER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "MMAKER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "MMAKER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MMAKER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MMAKER_DATABASE_NAME")
	setStr(&cfg.Database.User, "MMAKER_DATABASE_USER")
	setStr(&cfg.Database.Password, "MMAKER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MMAKER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "MMAKER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MMAKER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MMAKER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MMAKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MMAKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MMAKER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MMAKER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MMAKER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MMAKER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MMAKER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MMAKER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MMAKER_S3_REGION")
	setStr(&cfg.S3.Bucket, "MMAKER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MMAKER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MMAKER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MMAKER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MMAKER_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setInt64(&cfg.Engine.SeedCoins, "MMAKER_ENGINE_SEED_COINS")
	setInt64(&cfg.Engine.RedemptionCoins, "MMAKER_ENGINE_REDEMPTION_COINS")

	// ── Server ──
	setInt(&cfg.Server.Port, "MMAKER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MMAKER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MMAKER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MMAKER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MMAKER_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MMAKER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
