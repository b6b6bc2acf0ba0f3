package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Initialize(Config{Level: level, Format: "json", Output: buf})
	t.Cleanup(func() {
		Initialize(Config{Level: "info", Format: "json", Output: &bytes.Buffer{}})
	})
	return buf
}

func TestInfo_WritesFields(t *testing.T) {
	buf := captureJSON(t, "debug")

	Info("cart consolidated", Fields{"owner": "user:1", "merged": 2})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "cart consolidated", line["message"])
	assert.Equal(t, "user:1", line["owner"])
	assert.Equal(t, float64(2), line["merged"])
	assert.Contains(t, line["caller"], "logger_test.go")
}

func TestError_IncludesError(t *testing.T) {
	buf := captureJSON(t, "info")

	Error("merge failed", errors.New("boom"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "boom", line["error"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureJSON(t, "warn")

	Debug("hidden")
	Info("hidden")
	assert.Zero(t, buf.Len())

	Warn("shown", nil)
	assert.NotZero(t, buf.Len())
}

func TestWithContext(t *testing.T) {
	buf := captureJSON(t, "info")

	WithContext(Fields{"request_id": "abc"}).Info("handled")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["request_id"])
}
