// Package config loads runtime configuration for the broadcast backend
// from environment variables, with a .env file loaded first for local
// development (mirrors the reference server's bootstrap).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved, process-wide configuration tree.
type Config struct {
	Server   ServerConfig
	AWS      AWSConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Session  SessionConfig
	RateLim  RateLimitConfig
	Audio    AudioConfig
	Partial  PartialConfig
	Translate TranslateConfig
	Synth    SynthConfig
	Broadcast BroadcastConfig
	Heartbeat HeartbeatConfig
	Auth     AuthConfig
	S3       S3Config
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig holds the tunables named by spec component B.
type SessionConfig struct {
	MaxDuration       time.Duration // hard ceiling on expiresAt-createdAt
	DefaultTTL        time.Duration
	IDGenMaxAttempts  int           // N1: generator-internal retries
	IDGenOuterRetries int           // N2: caller backoff retries
	IDGenBackoffBase  time.Duration
}

// RateLimitConfig holds per-operation sliding-window budgets (component E).
type RateLimitConfig struct {
	Window                time.Duration
	ConnectionAttemptMax  int
	SessionCreateMax      int
	ListenerJoinMax       int
	HeartbeatMax          int
	AudioChunkMax         int
	ControlMessageMax     int
	WarnAfterViolations   int
	CloseAfterViolations  int
}

// AudioConfig holds component F tunables.
type AudioConfig struct {
	SampleRateHz   int
	Channels       int
	BitsPerSample  int
	ChunkMs        int
	BufferSeconds  int
}

// PartialConfig holds component H tunables.
type PartialConfig struct {
	MinStability      float64
	MaxBufferTimeout  time.Duration
	OrphanTimeout     time.Duration
	DedupTTL          time.Duration
	DedupMaxEntries   int
	DiscrepancyWarnPct float64
	RolloutPercentage int
}

// TranslateConfig holds component J tunables.
type TranslateConfig struct {
	CacheTTL       time.Duration
	MaxCacheEntries int
	EvictBatchPct  float64
	CallTimeout    time.Duration
}

// SynthConfig holds component L tunables.
type SynthConfig struct {
	CallTimeout       time.Duration
	MaxConcurrentCalls int
}

// BroadcastConfig holds component M tunables.
type BroadcastConfig struct {
	MaxConcurrent   int
	RetryBackoffMs  int
	MaxRetries      int
}

// HeartbeatConfig holds component O tunables.
type HeartbeatConfig struct {
	WarningMinutes       int
	RefreshMinutes       int
	MissedTimeoutSeconds int
}

// AuthConfig holds component D tunables.
type AuthConfig struct {
	JWTSecret            string
	AllowAnonymousListen bool
	IssuerKeyCacheTTL    time.Duration
}

// S3Config holds the reconnect-URL presigner's tunables.
type S3Config struct {
	ReconnectBucket string
	PresignExpiry   time.Duration
}

// Load reads .env (if present) then builds Config from the environment,
// falling back to sane defaults for anything unset.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=broadcast port=5432 sslmode=disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			MaxDuration:       getDuration("SESSION_MAX_DURATION", 2*time.Hour),
			DefaultTTL:        getDuration("SESSION_DEFAULT_TTL", 2*time.Hour),
			IDGenMaxAttempts:  getInt("SESSION_IDGEN_MAX_ATTEMPTS", 10),
			IDGenOuterRetries: getInt("SESSION_IDGEN_OUTER_RETRIES", 5),
			IDGenBackoffBase:  getDuration("SESSION_IDGEN_BACKOFF_BASE", 50*time.Millisecond),
		},
		RateLim: RateLimitConfig{
			Window:               getDuration("RATE_LIMIT_WINDOW", 1*time.Second),
			ConnectionAttemptMax: getInt("RATE_LIMIT_CONNECTION_ATTEMPT", 10),
			SessionCreateMax:     getInt("RATE_LIMIT_SESSION_CREATE", 3),
			ListenerJoinMax:      getInt("RATE_LIMIT_LISTENER_JOIN", 10),
			HeartbeatMax:         getInt("RATE_LIMIT_HEARTBEAT", 2),
			AudioChunkMax:        getInt("RATE_LIMIT_AUDIO_CHUNK", 50),
			ControlMessageMax:    getInt("RATE_LIMIT_CONTROL_MESSAGE", 5),
			WarnAfterViolations:  getInt("RATE_LIMIT_WARN_AFTER", 3),
			CloseAfterViolations: getInt("RATE_LIMIT_CLOSE_AFTER", 15),
		},
		Audio: AudioConfig{
			SampleRateHz:  getInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			Channels:      getInt("AUDIO_CHANNELS", 1),
			BitsPerSample: getInt("AUDIO_BITS_PER_SAMPLE", 16),
			ChunkMs:       getInt("AUDIO_CHUNK_MS", 100),
			BufferSeconds: getInt("AUDIO_BUFFER_SECONDS", 5),
		},
		Partial: PartialConfig{
			MinStability:       getFloat("PARTIAL_MIN_STABILITY", 0.85),
			MaxBufferTimeout:   getDuration("PARTIAL_MAX_BUFFER_TIMEOUT", 5*time.Second),
			OrphanTimeout:      getDuration("PARTIAL_ORPHAN_TIMEOUT", 20*time.Second),
			DedupTTL:           getDuration("PARTIAL_DEDUP_TTL", 10*time.Second),
			DedupMaxEntries:    getInt("PARTIAL_DEDUP_MAX_ENTRIES", 10000),
			DiscrepancyWarnPct: getFloat("PARTIAL_DISCREPANCY_WARN_PCT", 0.20),
			RolloutPercentage:  getInt("PARTIAL_ROLLOUT_PERCENTAGE", 100),
		},
		Translate: TranslateConfig{
			CacheTTL:        getDuration("TRANSLATE_CACHE_TTL", 1*time.Hour),
			MaxCacheEntries: getInt("TRANSLATE_MAX_CACHE_ENTRIES", 50000),
			EvictBatchPct:   getFloat("TRANSLATE_EVICT_BATCH_PCT", 0.02),
			CallTimeout:     getDuration("TRANSLATE_CALL_TIMEOUT", 3*time.Second),
		},
		Synth: SynthConfig{
			CallTimeout:        getDuration("SYNTH_CALL_TIMEOUT", 2*time.Second),
			MaxConcurrentCalls: getInt("SYNTH_MAX_CONCURRENT_CALLS", 20),
		},
		Broadcast: BroadcastConfig{
			MaxConcurrent:  getInt("BROADCAST_MAX_CONCURRENT", 100),
			RetryBackoffMs: getInt("BROADCAST_RETRY_BACKOFF_MS", 100),
			MaxRetries:     getInt("BROADCAST_MAX_RETRIES", 2),
		},
		Heartbeat: HeartbeatConfig{
			WarningMinutes:       getInt("HEARTBEAT_WARNING_MINUTES", 90),
			RefreshMinutes:       getInt("HEARTBEAT_REFRESH_MINUTES", 110),
			MissedTimeoutSeconds: getInt("HEARTBEAT_MISSED_TIMEOUT_SECONDS", 90),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("JWT_SECRET", "dev-secret-change-me"),
			AllowAnonymousListen: getEnv("AUTH_ALLOW_ANON_LISTEN", "true") == "true",
			IssuerKeyCacheTTL:    getDuration("AUTH_ISSUER_KEY_CACHE_TTL", 10*time.Minute),
		},
		S3: S3Config{
			ReconnectBucket: getEnv("S3_RECONNECT_BUCKET", "polyglot-broadcast-reconnect"),
			PresignExpiry:   getDuration("S3_RECONNECT_PRESIGN_EXPIRY", 15*time.Minute),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
