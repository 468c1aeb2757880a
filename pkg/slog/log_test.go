package slog_test

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/stretchr/testify/assert"
)

var log, chk = slog.New(os.Stdout)

func TestGetLogger(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	slog.SetLogLevel(slog.Trace)
	log.T.Ln("testing log level", slog.LevelSpecs[slog.Trace].Name)
	log.D.Ln("testing log level", slog.LevelSpecs[slog.Debug].Name)
	log.I.Ln("testing log level", slog.LevelSpecs[slog.Info].Name)
	log.W.Ln("testing log level", slog.LevelSpecs[slog.Warn].Name)
	log.E.F("testing log level %s", slog.LevelSpecs[slog.Error].Name)
	assert.True(t, chk.E(errors.New("dummy error as error")))
	assert.False(t, chk.D(nil))
	err := log.I.Err("format string %d '%s'", 5, "testing")
	assert.EqualError(t, err, "format string 5 'testing'")
	log.I.S("`backtick wrapped string`", t)
}

func TestLevelGate(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	var buf bytes.Buffer
	l, c := slog.New(&buf)
	slog.SetLogLevel(slog.Warn)
	l.D.Ln("hidden")
	l.I.F("hidden %d", 1)
	assert.True(t, c.I(errors.New("hidden but still reported")))
	assert.Empty(t, buf.String())
	l.W.Ln("shown")
	l.E.Ln("also shown")
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "log_test.go")
}

func TestSetLogLevelName(t *testing.T) {
	defer slog.SetLogLevel(slog.GetLogLevel())
	assert.True(t, slog.SetLogLevelName("debug"))
	assert.Equal(t, slog.Debug, slog.GetLogLevel())
	assert.True(t, slog.SetLogLevelName("T"))
	assert.Equal(t, slog.Trace, slog.GetLogLevel())
	assert.False(t, slog.SetLogLevelName("verbose"))
	assert.Equal(t, slog.Trace, slog.GetLogLevel())
	assert.False(t, slog.SetLogLevelName(""))
}
