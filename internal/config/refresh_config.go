package config

import "time"

const (
	refreshTokensVar     = "AUTH_REFRESH_TOKENS"
	renewalOffsetVar     = "AUTH_TOKEN_RENEWAL_OFFSET"
	refreshGraceVar      = "AUTH_REFRESH_GRACE_SECONDS"
	refreshRetryVar      = "AUTH_REFRESH_RETRY_ATTEMPTS"
	refreshRetryBaseVar  = "AUTH_REFRESH_RETRY_BASE_MS"
	defaultRenewalOffset = 300
)

type RefreshConfig interface {
	GetRefreshTokensEnabled() bool
	GetRenewalOffset() time.Duration
	GetRefreshGraceInterval() time.Duration
	GetRefreshRetryAttempts() int
	GetRefreshRetryBaseDelay() time.Duration
}

type Refresh struct{}

var _ RefreshConfig = Refresh{}

func (Refresh) GetRefreshTokensEnabled() bool {
	return GetEnvBool(refreshTokensVar)
}

func (Refresh) GetRenewalOffset() time.Duration {
	return getEnvSeconds(renewalOffsetVar, defaultRenewalOffset)
}

func (Refresh) GetRefreshGraceInterval() time.Duration {
	return getEnvSeconds(refreshGraceVar, 5)
}

func (Refresh) GetRefreshRetryAttempts() int {
	return GetEnvInt(refreshRetryVar, 3)
}

func (Refresh) GetRefreshRetryBaseDelay() time.Duration {
	return time.Duration(GetEnvInt(refreshRetryBaseVar, 2000)) * time.Millisecond
}
