package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "lintas.log")

	l, err := New(Config{Level: "debug", File: logPath})
	require.NoError(t, err)
	defer l.Close()

	l.Info().Str("k", "v").Msg("hello")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	l, err := New(Config{Level: "nonsense", Console: true})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	assert.Error(t, SetLevel("bogus"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	require.NoError(t, SetLevel("info"))
}

func TestQuiet_RestoresLevel(t *testing.T) {
	require.NoError(t, SetLevel("debug"))

	restore := Quiet()
	assert.Equal(t, zerolog.FatalLevel, zerolog.GlobalLevel())

	restore()
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestQuiet_NestedScopes(t *testing.T) {
	require.NoError(t, SetLevel("info"))

	outer := Quiet()
	inner := Quiet()
	assert.Equal(t, zerolog.FatalLevel, zerolog.GlobalLevel())

	inner()
	assert.Equal(t, zerolog.FatalLevel, zerolog.GlobalLevel())

	outer()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestQuiet_RestoreIdempotent(t *testing.T) {
	require.NoError(t, SetLevel("info"))

	restore := Quiet()
	restore()
	restore()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestQuiet_RestoresOnPanicPath(t *testing.T) {
	require.NoError(t, SetLevel("info"))

	func() {
		defer func() { _ = recover() }()
		restore := Quiet()
		defer restore()
		panic("authorization blew up")
	}()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
