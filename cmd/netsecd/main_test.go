package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServer(t *testing.T) {
	server := newMetricsServer(":0")

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "netsec_sync_passes_total")
}

func TestRunInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks: []\n"), 0o600))

	err := run(context.Background(), path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestCommandFlags(t *testing.T) {
	cmd := newCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--config", "/etc/netsec/netsec.yaml", "--once", "-v", "4"}))

	configPath, err := cmd.Flags().GetString("config")
	require.NoError(t, err)
	assert.Equal(t, "/etc/netsec/netsec.yaml", configPath)

	once, err := cmd.Flags().GetBool("once")
	require.NoError(t, err)
	assert.True(t, once)
}
