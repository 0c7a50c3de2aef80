package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	body := "storage:\n  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"log:\n  level: error\n" +
		"database:\n  loglevel: silent\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFormatsCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "formats", "-o", "json")
	require.NoError(t, err)
	var matrix map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &matrix))
	assert.Contains(t, matrix["jpeg"], "png")

	out, err = execute(t, "--config", cfg, "formats", "JPG", "-o", "yaml")
	require.NoError(t, err)
	matrix = nil
	require.NoError(t, yaml.Unmarshal([]byte(out), &matrix))
	require.Len(t, matrix, 1)
	assert.Contains(t, matrix["jpeg"], "png")
	assert.NotContains(t, matrix["jpeg"], "jpeg")

	out, err = execute(t, "--config", cfg, "formats", "png")
	require.NoError(t, err)
	assert.Contains(t, out, "converters: ")
	assert.Contains(t, out, "png -> ")

	_, err = execute(t, "--config", cfg, "formats", "-o", "xml")
	assert.Error(t, err)
}

func TestSweepCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "sweep")
	require.NoError(t, err)

	var res biz.SweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, biz.DefaultSettings().CleanupTTLMinutes, res.TTLMinutes)
	assert.False(t, res.Skipped)
	assert.Zero(t, res.Originals.Scanned)
	assert.Zero(t, res.Converted.Scanned)
}

func TestBadConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "formats")
	assert.Error(t, err)
}
