package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	t.Run("production writes JSON at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWithWriter("production", "warn", &buf)

		log.Info().Msg("dropped")
		log.Warn().Str("folder", "INBOX").Msg("kept")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "kept", entry["message"])
		assert.Equal(t, "INBOX", entry["folder"])
		assert.Equal(t, "warn", entry["level"])
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWithWriter("production", "chatty", &buf)
		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})

	t.Run("development output is not JSON", func(t *testing.T) {
		var buf bytes.Buffer
		SetupWithWriter("development", "debug", &buf)
		log.Debug().Msg("hello")

		var entry map[string]any
		assert.Error(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Contains(t, buf.String(), "hello")
	})
}
