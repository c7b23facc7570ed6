package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/tagscan/internal/fingerprint"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tagscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()
	c := Default()
	assert.Equal(t, DefaultVersion, c.Version)
	assert.Equal(t, DefaultCachePath, c.CachePath)
	assert.Equal(t, "full", c.Fingerprint)
	assert.Equal(t, "info", c.LogLevel)
	assert.Zero(t, c.Workers)
	require.NoError(t, c.Validate())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
packages_dir: /games/d1/packages
version: d1_ttk
cache_path: /var/cache/ttk.cache
workers: 3
fingerprint: quick
wordlist: extra.txt
log_level: debug
`)
	c, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, &Config{
		PackagesDir: "/games/d1/packages",
		Version:     "d1_ttk",
		CachePath:   "/var/cache/ttk.cache",
		Workers:     3,
		Fingerprint: "quick",
		Wordlist:    "extra.txt",
		LogLevel:    "debug",
	}, c)
	assert.Equal(t, fingerprint.Quick, c.FingerprintMode())
}

func TestLoadFile_PartialGetsDefaults(t *testing.T) {
	t.Parallel()
	c, err := LoadFile(writeConfig(t, "packages_dir: pkgs\n"))
	require.NoError(t, err)
	assert.Equal(t, "pkgs", c.PackagesDir)
	assert.Equal(t, DefaultVersion, c.Version)
	assert.Equal(t, DefaultCachePath, c.CachePath)
	assert.Equal(t, fingerprint.Full, c.FingerprintMode())
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadFile(writeConfig(t, "workers: [1, 2\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*Config){
		"negative workers": func(c *Config) { c.Workers = -1 },
		"fingerprint mode": func(c *Config) { c.Fingerprint = "md5" },
		"log level":        func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
