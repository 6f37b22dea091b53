package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"server_url":      "https://vasp.example",
		"token":           "abc",
		"request_timeout": "10s",
	})
	partial := writeTempJSON(t, dir, "partial.json", map[string]any{"token": "xyz"})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"umactl", "-config", full}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "https://vasp.example", cfg.ServerURL)
		assert.Equal(t, "abc", cfg.Token)
		assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	})

	t.Run("absent keys keep previous values", func(t *testing.T) {
		os.Args = []string{"umactl", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
		assert.Equal(t, "xyz", cfg.Token)
		assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	})

	t.Run("no flag → no changes", func(t *testing.T) {
		os.Args = []string{"umactl"}

		cfg := &Config{ServerURL: "defaults"}
		parseJson(cfg)

		assert.Equal(t, "defaults", cfg.ServerURL)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"umactl", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
