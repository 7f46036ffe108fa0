package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestBuild_Defaults(t *testing.T) {
	cfg, err := build(nil, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, "@every 30s", cfg.Watchdog.Schedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 15*time.Minute, cfg.DevServer.AccessTTL)
	assert.Equal(t, ":8000", cfg.DevServer.Addr)
}

func TestBuild_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		file     *UserFile
		env      map[string]string
		wantURL  string
		wantKind string
	}{
		{
			name:     "user file overrides defaults",
			file:     &UserFile{APIURL: "https://garage.example.com/api/", Store: "keyring"},
			wantURL:  "https://garage.example.com/api",
			wantKind: "keyring",
		},
		{
			name:     "env overrides user file",
			file:     &UserFile{APIURL: "https://garage.example.com", Store: "keyring"},
			env:      map[string]string{"JOBCARD_API_URL": "http://127.0.0.1:9000", "JOBCARD_STORE": "SQLite"},
			wantURL:  "http://127.0.0.1:9000",
			wantKind: "sqlite",
		},
		{
			name:     "blank env falls through",
			file:     &UserFile{Store: "memory"},
			env:      map[string]string{"JOBCARD_STORE": "   "},
			wantURL:  "http://localhost:8000",
			wantKind: "memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := build(tt.file, envFrom(tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, cfg.API.BaseURL)
			assert.Equal(t, tt.wantKind, cfg.Store.Kind)
		})
	}
}

func TestBuild_InvalidDuration(t *testing.T) {
	_, err := build(&UserFile{HTTPTimeout: "soon"}, envFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBCARD_HTTP_TIMEOUT")

	_, err = build(nil, envFrom(map[string]string{"DEVSERVER_ACCESS_TTL": "-"}))
	require.Error(t, err)
}

func TestUserFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", configFileName)

	missing, err := readUserFile(path)
	require.NoError(t, err)
	assert.Equal(t, &UserFile{}, missing)

	want := &UserFile{APIURL: "https://garage.example.com", Store: "sqlite", ExpiryCheck: "@every 1m"}
	require.NoError(t, writeUserFile(path, want))

	got, err := readUserFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUserFilePath_HonoursConfigDirEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JOBCARD_CONFIG_DIR", dir)

	path, err := UserFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, configFileName), path)
}
