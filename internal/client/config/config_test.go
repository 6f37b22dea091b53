package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Empty(t, c.Token)
	assert.Equal(t, 60*time.Second, c.RequestTimeout)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"umactl"}
	t.Setenv("UMACTL_SERVER_URL", "")
	t.Setenv("UMACTL_TOKEN", "")
	t.Setenv("UMACTL_TIMEOUT", "")

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerURL)
}

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expected    *Config
		expectPanic bool
	}{
		{
			name: "all set",
			env: map[string]string{
				"UMACTL_SERVER_URL": "https://vasp.example",
				"UMACTL_TOKEN":      "tok",
				"UMACTL_TIMEOUT":    "5s",
			},
			expected: &Config{ServerURL: "https://vasp.example", Token: "tok", RequestTimeout: 5 * time.Second},
		},
		{
			name:     "empty values keep defaults",
			env:      map[string]string{"UMACTL_SERVER_URL": "", "UMACTL_TOKEN": "", "UMACTL_TIMEOUT": ""},
			expected: &Config{ServerURL: "http://127.0.0.1:8080", RequestTimeout: 60 * time.Second},
		},
		{
			name:        "bad timeout",
			env:         map[string]string{"UMACTL_TIMEOUT": "soon"},
			expectPanic: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := &Config{}
			cfg.LoadDefaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseEnv(cfg) })
				return
			}
			require.NotPanics(t, func() { parseEnv(cfg) })
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
