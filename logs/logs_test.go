package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogVOnlyAtDebug(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	Use(zap.New(core))
	t.Cleanup(func() { Use(nil) })

	LogV("hidden %d", 1)
	assert.Zero(t, recorded.Len())

	core, recorded = observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	LogV("shown %d", 2)
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "shown 2", recorded.All()[0].Message)
}

func TestSetupWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path, closeFn, err := Setup(dir, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	L().Info("session started", zap.String("video", "clip.mp4"))
	LogV("debug line")
	closeFn()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"session started"`)
	assert.Contains(t, string(b), `"video":"clip.mp4"`)
	assert.Contains(t, string(b), "debug line")
}

func TestSetupQuietDropsDebug(t *testing.T) {
	path, closeFn, err := Setup(t.TempDir(), false)
	require.NoError(t, err)
	LogV("debug line")
	L().Warn("kept")
	closeFn()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "debug line")
	assert.Contains(t, string(b), "kept")
}
