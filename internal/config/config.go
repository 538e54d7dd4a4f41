package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
)

type Config interface {
	EnvConfig
	CorsConfig
	IdentityConfig
	RefreshConfig
	StoreConfig
	EventsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Identity
	Refresh
	Store
	Events
}

func New() Config {
	return mainConfig{}
}

// requiredVars must be set for the service to start.
var requiredVars = []string{
	clientIDVar,
	clientSecretVar,
	redirectURIVar,
}

// Validate checks the environment for settings the service cannot run without.
func Validate(c Config) error {
	var missing []string
	for _, name := range requiredVars {
		if GetEnv(name, "") == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: environment variable(s) %s must be configured", lserrors.ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if raw := GetEnv(renewalOffsetVar, ""); raw != "" {
		if _, err := parsePositiveInt(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", lserrors.ErrInvalidConfig, renewalOffsetVar, err)
		}
	}

	if key := c.GetCacheEncryptionKey(); key != "" {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return fmt.Errorf("%w: %s must be 64 hex characters", lserrors.ErrInvalidConfig, cacheEncryptionKeyVar)
		}
	}

	if c.GetRefreshTokensEnabled() && c.GetRedisEndpoint() == "" {
		return fmt.Errorf("%w: %s is required when %s is set", lserrors.ErrInvalidConfig, redisEndpointVar, refreshTokensVar)
	}
	return nil
}
