package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Parallel()
	t.Run("jsonc", configJSONC)
	t.Run("flags override file", configOverride)
	t.Run("missing explicit file", configMissing)
	t.Run("invalid", configInvalid)
}

func writeConfig(tb testing.TB, text string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), configName)
	require.NoError(tb, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func configJSONC(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	err := parseConfig(&cfg, []byte(`{
		// Scan resistant.
		"policy": "clockpro",
		"capacity": 32,
		"async": true, // Trailing commas are allowed.
	}`))
	require.NoError(t, err)
	want := defaultConfig()
	want.Policy = policyClockPro
	want.Capacity = 32
	want.Async = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func configOverride(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{"policy": "arc", "window": 5, "page_size": 10}`)
	cfg, file, err := parseArgs([]string{
		"--config", path,
		"--window", "7",
		"lines.txt",
	})
	require.NoError(t, err)
	require.Equal(t, "lines.txt", file)
	require.Equal(t, policyARC, cfg.Policy, "file value")
	require.Equal(t, 10, cfg.PageSize, "file value")
	require.Equal(t, 7, cfg.Window, "flag value")
}

func configMissing(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "absent.jsonc")
	_, _, err := parseArgs([]string{"--config", path, "lines.txt"})
	require.ErrorIs(t, err, errConfigRead)
}

func configInvalid(t *testing.T) {
	t.Parallel()
	for _, text := range []string{
		`{"policy": "fifo"}`,
		`{"window": 0}`,
		`{"log_level": "loud"}`,
		`{"policy": `,
	} {
		path := writeConfig(t, text)
		_, _, err := parseArgs([]string{"--config", path, "lines.txt"})
		require.ErrorIs(t, err, errConfigInvalid, text)
	}
}
