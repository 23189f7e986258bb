package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// minListCap is one history page; a smaller list cache cannot serve it.
const minListCap = 10

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// Encryption key is optional; without it stored credentials are only obfuscated.
	if c.Encryption.Key == "" {
		slog.Warn("ENCRYPTION_KEY is empty, stored API keys fall back to per-user XOR obfuscation")
	} else if len(c.Encryption.Key) != 64 {
		errs = append(errs, "ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes)")
	} else if _, err := hex.DecodeString(c.Encryption.Key); err != nil {
		errs = append(errs, "ENCRYPTION_KEY must be valid hex")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Quota
	if c.Quota.DailyLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_DAILY_LIMIT must be positive, got %d", c.Quota.DailyLimit))
	}
	if c.Quota.Backend != "postgres" && c.Quota.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("QUOTA_BACKEND must be postgres or redis, got %q", c.Quota.Backend))
	}
	if _, err := c.Quota.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTA_TIMEZONE: %v", err))
	}

	if c.Cache.ListCap < minListCap {
		errs = append(errs, fmt.Sprintf("CACHE_LIST_CAP must be at least %d, got %d", minListCap, c.Cache.ListCap))
	}

	// Shared AI credential: warn only, users with their own key still work.
	if c.AI.GeminiAPIKey == "" && c.AI.ProxyURL == "" {
		slog.Warn("GEMINI_API_KEY and AI_PROXY_URL are empty; only users with their own API key can use AI features")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
