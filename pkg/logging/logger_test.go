// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "testsvc",
		Quiet:   true,
	})
	require.NoError(t, err)

	logger.Info("hello", "key", "value")
	require.NoError(t, logger.Close())

	name := "testsvc_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"service":"testsvc"`)
}

func TestNew_LevelFilter(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filter",
		Quiet:   true,
	})
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	name := "filter_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNew_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger, err := New(Config{LogDir: dir, Quiet: true})
	require.NoError(t, err)
	defer logger.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDefault_NotNil(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	require.NotNil(t, logger.Logger)
	// Close without file logging is a no-op.
	assert.NoError(t, logger.Close())
}

func TestNew_QuietWithoutFileDiscards(t *testing.T) {
	logger, err := New(Config{Quiet: true})
	require.NoError(t, err)
	// Must not panic even though no destination is configured.
	logger.Error(strings.Repeat("x", 10))
	assert.NoError(t, logger.Close())
}
