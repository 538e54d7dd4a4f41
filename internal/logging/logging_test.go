package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-login-service/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logging.ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, logging.ParseLevel(" warning "))
	require.Equal(t, zerolog.ErrorLevel, logging.ParseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel("verbose"))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Component(logging.NewWithWriter(&buf, "info"), "refresh")

	logger.Debug().Msg("hidden")
	logger.Info().Str("session", "s1").Msg("scheduled")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "refresh", line["component"])
	require.Equal(t, "s1", line["session"])
	require.Equal(t, "scheduled", line["message"])
}
