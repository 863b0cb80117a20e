package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"empty level defaults to info", &config.LoggingConfig{}, false},
		{"invalid level", &config.LoggingConfig{Level: "loud"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewWithWriter(tt.cfg, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "igharvest.log")
	l, err := NewWithWriter(&config.LoggingConfig{
		Level:      "info",
		File:       path,
		MaxSize:    1,
		MaxBackups: 1,
	}, &bytes.Buffer{})
	require.NoError(t, err)

	l.InfoWithFields("written to file", map[string]interface{}{"target": "natgeo"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written to file"`)
	assert.Contains(t, string(data), `"app":"igharvest"`)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf)

	child := base.WithField("target", "natgeo").WithFields(map[string]interface{}{
		"attempt": 2,
		"delay":   1500 * time.Millisecond,
	})
	child.WithError(errors.New("boom")).Warn("attempt failed")

	out := buf.String()
	assert.Contains(t, out, `"target":"natgeo"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"delay":"1.5s"`)
	assert.Contains(t, out, `"error":"boom"`)

	buf.Reset()
	base.Info("parent untouched")
	assert.False(t, strings.Contains(buf.String(), "natgeo"))
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogPacing(tl, "profile", "natgeo", 9*time.Second)
	LogRetry(tl, "login", "me", 1, 3, time.Minute, errors.New("timeout"))
	LogBatchProgress(tl, "natgeo", 25, 100)

	require.Len(t, tl.GetMessages(), 3)
	assert.Equal(t, "DEBUG", tl.GetMessages()[0].Level)

	warn := tl.GetMessagesByLevel("WARN")
	require.Len(t, warn, 1)
	assert.EqualError(t, warn[0].Error, "timeout")
	assert.Equal(t, 3, warn[0].Fields["max_attempts"])

	progress := tl.GetMessagesByLevel("INFO")[0]
	assert.Equal(t, "25.0%", progress.Fields["percentage"])
}

func TestTestLoggerSharesRecord(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("a", 1).WithField("b", 2).Error("child")
	tl.Info("parent")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, msgs[0].Fields)
	assert.True(t, tl.HasError())
	assert.Equal(t, 1, tl.CountMessages("parent"))

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestGlobalLogger(t *testing.T) {
	tl := NewTestLogger()
	SetLogger(tl)
	t.Cleanup(func() { SetLogger(NewNopLogger()) })

	WithField("k", "v").Info("through global")
	assert.True(t, tl.HasMessage("through global"))
}
