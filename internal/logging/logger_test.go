package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"unknown", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(99).String())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat(""))
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelDebug, FormatJSON).
		WithOperationID("op-1").
		WithFields("index", "cn.equality")
	log.Warn("removing id from undefined set", "key", "smith")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "removing id from undefined set", rec["msg"])
	assert.Equal(t, "op-1", rec["op_id"])
	assert.Equal(t, "cn.equality", rec["index"])
	assert.Equal(t, "smith", rec["key"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, LevelWarn, FormatText)
	log.Debug("hidden")
	log.Info("hidden")
	log.Error("shown", "code", 53)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "msg=shown"), out)
	assert.Contains(t, out, "code=53")
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.Info("nothing")
	assert.NotNil(t, log.WithFields("a", 1).WithOperationID("x"))
}

func TestNewOperationID(t *testing.T) {
	a := NewOperationID()
	b := NewOperationID()
	assert.NotEqual(t, a, b)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}
