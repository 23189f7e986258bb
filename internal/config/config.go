package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	NATS       NATSConfig
	AI         AIConfig
	Quota      QuotaConfig
	Cache      CacheConfig
	Stats      StatsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	CORSAllowedOrigins []string
	AuthRateLimit      int
	AuthRateWindowSec  int
	// AdminEmails get the admin role when they register.
	AdminEmails        []string
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type EncryptionConfig struct {
	Key string
}

// NATSConfig is optional; an empty URL keeps stats recording synchronous.
type NATSConfig struct {
	URL string
}

type AIConfig struct {
	GeminiAPIKey  string
	GeminiBaseURL string
	Model         string
	Timeout       time.Duration
	// ProxyURL points at an external proxy endpoint. When empty the shared
	// key is used in-process behind the per-minute limiter.
	ProxyURL          string
	ProxyPerMinute    int
	GrammarPerMinute  int
	EvaluatePerMinute int
}

type QuotaConfig struct {
	Backend    string
	DailyLimit int
	Timezone   string
}

type CacheConfig struct {
	ListCap    int
	SessionTTL time.Duration
}

type StatsConfig struct {
	RollupStaleness time.Duration
	// RefreshInterval schedules background rollup recomputation. Zero disables it.
	RefreshInterval time.Duration
	RecentWindow    int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: splitList(k.String("cors.allowed.origins")),
			AuthRateLimit:      k.Int("auth.rate.limit"),
			AuthRateWindowSec:  k.Int("auth.rate.window.sec"),
			AdminEmails:        splitList(k.String("admin.emails")),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Encryption: EncryptionConfig{
			Key: k.String("encryption.key"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		AI: AIConfig{
			GeminiAPIKey:      k.String("gemini.api.key"),
			GeminiBaseURL:     k.String("gemini.base.url"),
			Model:             k.String("gemini.model"),
			ProxyURL:          k.String("ai.proxy.url"),
			ProxyPerMinute:    k.Int("ai.proxy.per.minute"),
			GrammarPerMinute:  k.Int("ai.grammar.per.minute"),
			EvaluatePerMinute: k.Int("ai.evaluate.per.minute"),
		},
		Quota: QuotaConfig{
			Backend:    k.String("quota.backend"),
			DailyLimit: k.Int("quota.daily.limit"),
			Timezone:   k.String("quota.timezone"),
		},
		Cache: CacheConfig{
			ListCap: k.Int("cache.list.cap"),
		},
		Stats: StatsConfig{
			RecentWindow: k.Int("stats.recent.window"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AuthRateLimit == 0 {
		cfg.Server.AuthRateLimit = 20
	}
	if cfg.Server.AuthRateWindowSec == 0 {
		cfg.Server.AuthRateWindowSec = 60
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "ieltswriter"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "ieltswriter"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.AI.GeminiBaseURL == "" {
		cfg.AI.GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.0-flash"
	}
	if cfg.AI.ProxyPerMinute == 0 {
		cfg.AI.ProxyPerMinute = 10
	}
	if cfg.AI.GrammarPerMinute == 0 {
		cfg.AI.GrammarPerMinute = 10
	}
	if cfg.AI.EvaluatePerMinute == 0 {
		cfg.AI.EvaluatePerMinute = 5
	}
	if cfg.Quota.Backend == "" {
		cfg.Quota.Backend = "postgres"
	}
	if cfg.Quota.DailyLimit == 0 {
		cfg.Quota.DailyLimit = 10
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "UTC"
	}
	if cfg.Cache.ListCap == 0 {
		cfg.Cache.ListCap = 10
	}
	if cfg.Stats.RecentWindow == 0 {
		cfg.Stats.RecentWindow = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.JWT.AccessExpiry, err = durationOr(k, "jwt.access.expiry", "15m")
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}
	cfg.JWT.RefreshExpiry, err = durationOr(k, "jwt.refresh.expiry", "168h")
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}
	cfg.AI.Timeout, err = durationOr(k, "ai.timeout", "60s")
	if err != nil {
		return nil, fmt.Errorf("parsing ai timeout: %w", err)
	}
	cfg.Stats.RollupStaleness, err = durationOr(k, "stats.rollup.staleness", "15m")
	if err != nil {
		return nil, fmt.Errorf("parsing stats rollup staleness: %w", err)
	}
	cfg.Stats.RefreshInterval, err = durationOr(k, "stats.refresh.interval", "10m")
	if err != nil {
		return nil, fmt.Errorf("parsing stats refresh interval: %w", err)
	}

	// A login session lives as long as its refresh token.
	cfg.Cache.SessionTTL = cfg.JWT.RefreshExpiry

	return cfg, nil
}

func durationOr(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
