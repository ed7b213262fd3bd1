package appsched

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/resilience"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hit struct {
	Method string
	Path   string
	Body   string
}

type spawner struct {
	mu     sync.Mutex
	hits   []hit
	status int
}

func (s *spawner) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.hits = append(s.hits, hit{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	status := s.status
	s.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.URL.Path == "/v1/abilities/7/process" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"process_name":"com.example","pid":321,"uid":20010020,"state":"FOREGROUND"}`))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *spawner) Hits() []hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hit(nil), s.hits...)
}

func (s *spawner) Fail(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func newClient(t *testing.T) (*Client, *spawner) {
	t.Helper()
	sp := &spawner{}
	srv := httptest.NewServer(sp)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:  srv.URL,
		Timeout:  time.Second,
		RetryMax: 0,
		Breaker:  resilience.Settings{Threshold: 2, Cooldown: time.Hour},
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, sp
}

func flush(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Flush(ctx))
}

func TestNewRejectsBadAddress(t *testing.T) {
	_, err := New(Options{BaseURL: "localhost:8810"})
	assert.Error(t, err)
}

func TestLifecycleRequestsKeepCallOrder(t *testing.T) {
	c, sp := newClient(t)
	info := types.AbilityInfo{Name: "Main", BundleName: "com.example", Type: types.AbilityTypePage}
	want := types.NewWant(info.Element())

	require.NoError(t, c.LoadAbility(ability.Token(7), ability.NilToken, info, info.ApplicationInfo, want))
	require.NoError(t, c.MoveToForeground(ability.Token(7)))
	require.NoError(t, c.UpdateAbilityState(ability.Token(7), ability.StateActive))
	require.NoError(t, c.MoveToBackground(ability.Token(7)))
	require.NoError(t, c.TerminateAbility(ability.Token(7)))
	flush(t, c)

	hits := sp.Hits()
	require.Len(t, hits, 5)
	assert.Equal(t, hit{Method: http.MethodPost, Path: "/v1/abilities"}, hit{Method: hits[0].Method, Path: hits[0].Path})
	assert.Equal(t, "/v1/abilities/7/foreground", hits[1].Path)
	assert.Equal(t, http.MethodPut, hits[2].Method)
	assert.JSONEq(t, `{"state":"ACTIVE"}`, hits[2].Body)
	assert.Equal(t, "/v1/abilities/7/background", hits[3].Path)
	assert.Equal(t, hit{Method: http.MethodDelete, Path: "/v1/abilities/7"}, hits[4])

	var load loadRequest
	require.NoError(t, sonic.UnmarshalString(hits[0].Body, &load))
	assert.Equal(t, "7", load.Token)
	assert.Empty(t, load.CallerToken)
	assert.Equal(t, "Main", load.Ability.Name)
	assert.Equal(t, want.Element, load.Want.Element)
}

func TestQueries(t *testing.T) {
	c, sp := newClient(t)

	info, err := c.GetRunningProcessInfoByToken(ability.Token(7))
	require.NoError(t, err)
	assert.Equal(t, types.RunningProcessInfo{ProcessName: "com.example", PID: 321, UID: 20010020, State: "FOREGROUND"}, info)

	require.NoError(t, c.KillApplication("com.example"))
	require.NoError(t, c.KillProcessesByUserID(100))
	assert.True(t, c.Ready())

	hits := sp.Hits()
	assert.Equal(t, "/v1/apps/com.example", hits[1].Path)
	assert.Equal(t, "/v1/users/100/processes", hits[2].Path)
	assert.Equal(t, "/v1/ready", hits[3].Path)
}

func TestBreakerOpensOnFailures(t *testing.T) {
	c, sp := newClient(t)
	sp.Fail(http.StatusBadRequest)

	var status *StatusError
	err := c.KillApplication("com.example")
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusBadRequest, status.Code)
	assert.False(t, c.Ready())

	require.NoError(t, c.MoveToForeground(ability.Token(1)))
	flush(t, c)

	assert.ErrorIs(t, c.KillApplication("com.example"), resilience.ErrOpen)
	assert.ErrorIs(t, c.MoveToForeground(ability.Token(1)), resilience.ErrOpen)
	assert.Len(t, sp.Hits(), 3)
}

func TestClosedClientRefusesWork(t *testing.T) {
	c, _ := newClient(t)
	c.Close()
	assert.Error(t, c.TerminateAbility(ability.Token(3)))
}
