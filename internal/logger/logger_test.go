package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, IsDevelopment(""))
	assert.True(t, IsDevelopment("dev"))
	assert.True(t, IsDevelopment("Development"))
	assert.False(t, IsDevelopment("production"))
}

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewProduction(&buf)
	log.Info().Str("component", "auth").Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "auth", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNewDevelopmentWritesConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewDevelopment(&buf)
	log.Warn().Msg("careful")

	assert.Contains(t, buf.String(), "careful")
	assert.Contains(t, buf.String(), "WRN")
}
