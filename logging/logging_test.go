package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"", "info", "DEBUG", "warn", "warning", "error"} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestSetRoutesHelpers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Info("score computed", zap.Int("score", 42))
	Warn("insight conflict")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "score computed", entries[0].Message)
	assert.Equal(t, int64(42), entries[0].ContextMap()["score"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engage.log")
	require.NoError(t, Init(Options{Level: "debug", File: path}))
	t.Cleanup(func() { Set(nil) })

	Debug("hello file")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}
