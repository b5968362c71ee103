package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevelDefaultsToInfo(t *testing.T) {
	require.Equal(t, zapcore.InfoLevel, resolveLevel(""))
	require.Equal(t, zapcore.InfoLevel, resolveLevel("garbage"))
}

func TestResolveLevelRecognizesDebug(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, resolveLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, resolveLevel("warn"))
	require.Equal(t, zapcore.ErrorLevel, resolveLevel("error"))
}

func TestNewBuildsLoggerWithoutFileSink(t *testing.T) {
	logger, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, logger)
}
