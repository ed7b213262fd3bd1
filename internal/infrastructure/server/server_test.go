package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/api/middleware"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const launcher = `
name: com.ohos.launcher
uid: 10001
application_info:
  is_system_app: true
  is_launcher_app: true
abilities:
  - name: com.ohos.launcher.MainAbility
    launch_mode: SINGLETON
    visible: true
    is_launcher_ability: true
`

type spawner struct {
	mu    sync.Mutex
	paths []string
}

func (s *spawner) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.Method+" "+r.URL.Path)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *spawner) saw(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.paths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T, spawnURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	manifests := filepath.Join(dir, "bundles")
	require.NoError(t, os.MkdirAll(manifests, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(manifests, "launcher.yaml"), []byte(launcher), 0o644))

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	cfg.AMS.DataDir = filepath.Join(dir, "data")
	cfg.AMS.BootWaitRetries = 3
	cfg.AMS.BootWaitInterval = time.Millisecond
	cfg.AMS.MaxMissionID = 100
	cfg.Collaborators.AppSpawnAddr = spawnURL
	cfg.Collaborators.BundleManifestDir = manifests
	cfg.Collaborators.IPCTimeout = time.Second
	return cfg
}

func TestNewServerWiresEverything(t *testing.T) {
	sp := &spawner{}
	ts := httptest.NewServer(sp)
	defer ts.Close()

	srv, err := NewServer(context.Background(), testConfig(t, ts.URL), logging.Nop())
	require.NoError(t, err)
	defer srv.Close()

	assert.True(t, srv.Service().Ready())
	assert.Equal(t, 100, srv.Service().GetCurrentUserID())
	require.Eventually(t, func() bool { return sp.saw("POST /v1/abilities") }, 2*time.Second, 10*time.Millisecond,
		"the home ability is loaded through the spawner")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/apps", nil)
	srv.Router().ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "com.ohos.launcher")
}

func TestNewServerFailsWithoutSpawner(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	cfg := testConfig(t, ts.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewServer(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
