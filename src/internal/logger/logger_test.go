package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("debug", &buf))

	log := Component("arp")
	log.Debug().Str("node", "R0").Msg("request sent")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "arp", line["component"])
	assert.Equal(t, "R0", line["node"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "request sent", line["message"])
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Setup("chatty", &bytes.Buffer{}))
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup("warn", &buf))

	log := Component("sim")
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}
