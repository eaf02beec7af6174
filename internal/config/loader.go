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
// built-in defaults, applies KITCHAIN_* environment variable overrides, and
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

// applyEnvOverrides reads well-known KITCHAIN_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Node ──
	setStr(&cfg.Node.Name, "KITCHAIN_NODE_NAME")
	setStr(&cfg.Node.PrivateKey, "KITCHAIN_NODE_PRIVATE_KEY")
	setStr(&cfg.Node.EncryptedKeyPath, "KITCHAIN_NODE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Node.KeyPassword, "KITCHAIN_NODE_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "KITCHAIN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KITCHAIN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KITCHAIN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KITCHAIN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KITCHAIN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KITCHAIN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KITCHAIN_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KITCHAIN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KITCHAIN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KITCHAIN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KITCHAIN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KITCHAIN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KITCHAIN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KITCHAIN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KITCHAIN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KITCHAIN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KITCHAIN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KITCHAIN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KITCHAIN_S3_REGION")
	setStr(&cfg.S3.Bucket, "KITCHAIN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KITCHAIN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KITCHAIN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KITCHAIN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KITCHAIN_S3_FORCE_PATH_STYLE")

	// ── Gossip ──
	setStr(&cfg.Gossip.SelfAddress, "KITCHAIN_GOSSIP_SELF_ADDRESS")
	setStringSlice(&cfg.Gossip.Peers, "KITCHAIN_GOSSIP_PEERS")
	setDuration(&cfg.Gossip.PushTimeout, "KITCHAIN_GOSSIP_PUSH_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "KITCHAIN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "KITCHAIN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "KITCHAIN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "KITCHAIN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "KITCHAIN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "KITCHAIN_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KITCHAIN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KITCHAIN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KITCHAIN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KITCHAIN_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KITCHAIN_MODE")
	setStr(&cfg.LogLevel, "KITCHAIN_LOG_LEVEL")
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
