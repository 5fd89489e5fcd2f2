package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-hub/internal/logging"
)

func TestSetupWritesJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, "PROD", "debug")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Str("user_id", "u1").Msg("login")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "login", entry["message"])
	require.Equal(t, "u1", entry["user_id"])
}

func TestSetupFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, "PROD", "not-a-level")

	log.Debug().Msg("hidden")
	require.Empty(t, buf.String())
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
