package ipc

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
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/id"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Path   string
	Body   string
	CallID string
}

type process struct {
	mu    sync.Mutex
	calls []received
}

func (p *process) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.calls = append(p.calls, received{Path: r.URL.Path, Body: string(body), CallID: r.Header.Get(HeaderCallID)})
	p.mu.Unlock()
	if r.URL.Path == "/proc/result" {
		http.Error(w, "gone", http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *process) Calls() []received {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]received(nil), p.calls...)
}

func setup(t *testing.T) (*Dialer, *process, string) {
	t.Helper()
	p := &process{}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	d := NewDialer(Options{Timeout: time.Second})
	t.Cleanup(d.Close)
	return d, p, srv.URL + "/proc"
}

func flush(t *testing.T, d *Dialer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))
}

func TestEndpointsAreValidated(t *testing.T) {
	d := NewDialer(Options{})
	defer d.Close()
	for _, ep := range []string{"", "localhost:1", "ftp://host/x", "http://"} {
		_, err := d.Scheduler(ep)
		assert.Error(t, err, ep)
	}
}

func TestProxiesAreCachedPerEndpoint(t *testing.T) {
	d, _, ep := setup(t)
	a, err := d.ConnectCallback(ep)
	require.NoError(t, err)
	b, err := d.ConnectCallback(ep + "/")
	require.NoError(t, err)
	assert.Same(t, a, b)

	got, ok := d.LookupCallback(ep)
	assert.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []string{ep}, d.Endpoints())

	d.Forget(ep)
	_, ok = d.LookupCallback(ep)
	assert.False(t, ok)
	assert.Empty(t, d.Endpoints())
}

func TestSchedulerDeliversInOrder(t *testing.T) {
	d, p, ep := setup(t)
	s, err := d.Scheduler(ep)
	require.NoError(t, err)
	want := types.NewWant(types.ElementName{BundleName: "com.example", AbilityName: "Main"})

	require.NoError(t, s.ScheduleAbilityTransaction(want, ability.LifecycleInfo{State: ability.StateActive, IsNewWant: true}))
	require.NoError(t, s.ScheduleConnectAbility(want))
	require.NoError(t, s.ScheduleCommandAbility(want, false, 2))
	require.NoError(t, s.SendResult(1, -1, nil))
	require.NoError(t, s.ScheduleDisconnectAbility(want))
	flush(t, d)

	calls := p.Calls()
	require.Len(t, calls, 5)
	paths := make([]string, len(calls))
	for i, c := range calls {
		paths[i] = c.Path
		assert.True(t, id.IsValidPrefixed(c.CallID, id.CallPrefix), c.CallID)
	}
	assert.Equal(t, []string{"/proc/transaction", "/proc/connect", "/proc/command", "/proc/result", "/proc/disconnect"}, paths)

	var tx TransactionCall
	require.NoError(t, sonic.UnmarshalString(calls[0].Body, &tx))
	assert.Equal(t, ability.StateActive, tx.Info.State)
	assert.True(t, tx.Info.IsNewWant)
	assert.Equal(t, want.Element, tx.Want.Element)

	var cmd CommandCall
	require.NoError(t, sonic.UnmarshalString(calls[2].Body, &cmd))
	assert.Equal(t, 2, cmd.StartID)
}

func TestCallbackCarriesResultCode(t *testing.T) {
	d, p, ep := setup(t)
	cb, err := d.ConnectCallback(ep)
	require.NoError(t, err)
	el := types.ElementName{BundleName: "com.example", AbilityName: "Svc"}

	cb.OnAbilityConnectDone(el, "remote-1", errcode.OK)
	cb.OnAbilityDisconnectDone(el, errcode.ConnectionTimeout)
	flush(t, d)

	calls := p.Calls()
	require.Len(t, calls, 2)
	var done ConnectDoneCall
	require.NoError(t, sonic.UnmarshalString(calls[0].Body, &done))
	assert.Equal(t, ability.RemoteObject("remote-1"), done.Remote)
	assert.Equal(t, 0, done.Result)

	require.NoError(t, sonic.UnmarshalString(calls[1].Body, &done))
	assert.Equal(t, "/proc/disconnect-done", calls[1].Path)
	assert.Equal(t, int(errcode.ConnectionTimeout), done.Result)
	assert.Equal(t, errcode.ConnectionTimeout.Name(), done.ResultName)
}

func TestClosedDialer(t *testing.T) {
	d, _, ep := setup(t)
	s, err := d.Scheduler(ep)
	require.NoError(t, err)
	d.Close()

	assert.ErrorIs(t, s.ScheduleConnectAbility(nil), ErrClosed)
	_, err = d.ConnectCallback(ep)
	assert.ErrorIs(t, err, ErrClosed)
}
