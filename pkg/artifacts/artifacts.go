// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifacts persists staged pipeline outputs as JSON files.
//
// A stage artifact is the unit of idempotency: its existence on disk
// (absent the overwrite flag) short-circuits the stage that owns it.
// Artifacts are written with sorted object keys and a stable two-space
// indent so reruns produce byte-identical, diffable output.
package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes stage artifacts below caller-chosen paths.
type Store struct {
	log *slog.Logger
}

// NewStore returns a Store logging through the given logger.
func NewStore(log *slog.Logger) *Store {
	return &Store{log: log}
}

// Exists reports whether an artifact file is present.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadJSON decodes an artifact into v.
func (s *Store) LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", path, err)
	}
	s.log.Debug("loaded artifact", "path", path)
	return nil
}

// SaveJSON writes v as indented JSON, creating parent directories as
// needed. The write goes through a temp file in the same directory and
// a rename, so a crashed run never leaves a half-written artifact that
// a later run would mistake for a completed stage.
func (s *Store) SaveJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode artifact %s: %w", path, err)
	}
	return s.writeAtomic(path, buf.Bytes())
}

// LoadText reads a text artifact (the stripped markdown tables).
func (s *Store) LoadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", path, err)
	}
	return string(data), nil
}

// SaveText writes a text artifact, creating parent directories.
func (s *Store) SaveText(path, content string) error {
	return s.writeAtomic(path, []byte(content))
}

func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename artifact %s: %w", path, err)
	}
	s.log.Debug("saved artifact", "path", path, "bytes", len(data))
	return nil
}
