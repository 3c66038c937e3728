package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xsslab/internal/config"
	"xsslab/internal/crypto"
	"xsslab/internal/storage"
)

func testConfig(t *testing.T, port int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.HTTPPort = port
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Storage.Driver = config.DriverMemory
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()

	url := "http://" + cfg.Server.Addr() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t, ln.Addr().(*net.TCPAddr).Port)
	err = run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server")
}

func TestRunReturnsStorageError(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	cfg.Security.EncryptionKey = "not-a-key"

	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initializing memory storage")
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.LogDir = filepath.Join(dir, "logs")

	store, err := openStore(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &storage.FileStore{}, store)
	require.NoError(t, store.Close())

	key, err := crypto.GenerateKeyString(32)
	require.NoError(t, err)
	cfg.Security.EncryptionKey = key
	store, err = openStore(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &storage.SealedCookies{}, store)
	require.NoError(t, store.Close())
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		logger := newLogger(config.TelemetryConfig{ServiceName: "xsslab", LogFormat: format, LogLevel: "warn"})
		assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug), format)
		assert.True(t, logger.Enabled(context.Background(), slog.LevelError), format)
	}
}
