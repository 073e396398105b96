package util

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func init() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	defaultServerAddr      = "localhost:8080"
	defaultWriteTimeout    = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "tokenguard"
	defaultAudience   = "tokenguard-clients"

	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 15 * time.Minute

	defaultSweepInterval = 1 * time.Minute
	defaultRedisTimeout  = 2 * time.Second

	JWTLeeWay = 5 * time.Second
)

type ServerConfig struct {
	ServerAddr      string
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

func NewServerConfig() *ServerConfig {
	addr := os.Getenv("SERVER_ADDRESS")
	if addr == "" {
		addr = defaultServerAddr
	}

	return &ServerConfig{
		ServerAddr:      addr,
		WriteTimeout:    parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		ReadTimeout:     parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		IdleTimeout:     parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
	}
}

type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

func NewTokenConfig() *TokenConfig {
	accessSecret := os.Getenv("JWT_ACCESS_SECRET")
	if accessSecret == "" {
		log.Fatal("JWT_ACCESS_SECRET is not set")
	}
	refreshSecret := os.Getenv("JWT_REFRESH_SECRET")
	if refreshSecret == "" {
		log.Fatal("JWT_REFRESH_SECRET is not set")
	}

	return &TokenConfig{
		AccessSecret:  []byte(accessSecret),
		RefreshSecret: []byte(refreshSecret),
		AccessTTL:     parseDurationOrDefault("ACCESS_TOKEN_TTL", defaultAccessTTL),
		RefreshTTL:    parseDurationOrDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL),
		Issuer:        getEnvOrDefault("TOKEN_ISSUER", defaultIssuer),
		Audience:      getEnvOrDefault("TOKEN_AUDIENCE", defaultAudience),
	}
}

type ThrottleConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

func NewThrottleConfig() *ThrottleConfig {
	maxAttempts := defaultMaxLoginAttempts
	if s := os.Getenv("MAX_LOGIN_ATTEMPTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			maxAttempts = n
		} else {
			log.Printf("Invalid MAX_LOGIN_ATTEMPTS: %s, using default %d", s, defaultMaxLoginAttempts)
		}
	}

	return &ThrottleConfig{
		MaxAttempts:     maxAttempts,
		LockoutDuration: parseDurationOrDefault("LOCKOUT_DURATION", defaultLockoutDuration),
	}
}

type BlacklistConfig struct {
	SweepInterval time.Duration
	RedisEnabled  bool
	RedisTimeout  time.Duration
}

func NewBlacklistConfig() *BlacklistConfig {
	enabled := true
	if s := os.Getenv("REDIS_ENABLED"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			enabled = b
		} else {
			log.Printf("Invalid REDIS_ENABLED: %s, assuming enabled", s)
		}
	}

	return &BlacklistConfig{
		SweepInterval: parseDurationOrDefault("BLACKLIST_SWEEP_INTERVAL", defaultSweepInterval),
		RedisEnabled:  enabled,
		RedisTimeout:  parseDurationOrDefault("REDIS_TIMEOUT", defaultRedisTimeout),
	}
}

func GetWebhookURL() string {
	return os.Getenv("SECURITY_WEBHOOK_URL")
}

func getEnvOrDefault(varName, def string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return def
}

func parseDurationOrDefault(varName string, def time.Duration) time.Duration {
	if v := os.Getenv(varName); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Invalid duration in %s: %s, using default %s", varName, v, def)
	}
	return def
}
