package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerFallsBackToStdStreamsWithoutPaths(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{LogLevel: "info"}))
	require.NotNil(t, Logger)
	require.NotNil(t, InfoLogger)
	require.NotNil(t, ErrorLogger)
}

func TestInitLoggerWritesToConfiguredFiles(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.log")
	errPath := filepath.Join(dir, "error.log")

	require.NoError(t, InitLogger(LogConfig{
		InfoLogPath:  infoPath,
		ErrorLogPath: errPath,
		LogLevel:     "debug",
	}))

	Infof("hello %s", "world")
	Errorf("boom %d", 42)

	infoContents, err := os.ReadFile(infoPath)
	require.NoError(t, err)
	require.Contains(t, string(infoContents), "hello world")

	errContents, err := os.ReadFile(errPath)
	require.NoError(t, err)
	require.Contains(t, string(errContents), "boom 42")
}

func TestInitLoggerFallsBackWhenFileUnwritable(t *testing.T) {
	dir := t.TempDir()
	// a plain file in place of a directory component forces MkdirAll to fail
	// regardless of the process's privileges.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	require.NoError(t, InitLogger(LogConfig{
		InfoLogPath: filepath.Join(blocker, "nested", "info.log"),
		LogLevel:    "info",
	}))
	require.Equal(t, os.Stdout, InfoLogger.Out)
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, logrus.DebugLevel, parseLogLevel("debug"))
	require.Equal(t, logrus.WarnLevel, parseLogLevel("WARNING"))
	require.Equal(t, logrus.ErrorLevel, parseLogLevel("error"))
	require.Equal(t, logrus.InfoLevel, parseLogLevel("nonsense"))
}

func TestCustomFormatterIncludesLevelAndMessage(t *testing.T) {
	f := &CustomFormatter{TimestampFormat: "15:04:05 MST 2006/01/02"}
	l := logrus.New()
	l.SetFormatter(f)
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Warn("something happened")

	out := buf.String()
	require.True(t, strings.Contains(out, "WARN"))
	require.True(t, strings.Contains(out, "something happened"))
}

func TestInfoAndDebugfAreNilSafeBeforeInit(t *testing.T) {
	Logger = nil
	InfoLogger = nil
	ErrorLogger = nil

	require.NotPanics(t, func() {
		Info("no logger configured yet")
		Infof("formatted %d", 1)
		Debugf("debug %s", "msg")
		Errorf("err %s", "msg")
	})
}
