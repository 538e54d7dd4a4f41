package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar  = "PORT"
	appNameVar  = "APP_NAME"
	envVar      = "ENV"
	logLevelVar = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Login Service")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt returns the integer value of envVar, or defaultValue when unset or malformed.
func GetEnvInt(envVar string, defaultValue int) int {
	value, err := parsePositiveInt(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvBool treats any non-empty value other than "false" or "0" as true.
func GetEnvBool(envVar string) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(envVar)))
	return value != "" && value != "false" && value != "0"
}

func getEnvSeconds(envVar string, defaultValue int) time.Duration {
	return time.Duration(GetEnvInt(envVar, defaultValue)) * time.Second
}

func parsePositiveInt(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", value)
	}
	return value, nil
}
