package connect_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/connect"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	apps     *testutil.FakeAppScheduler
	timeouts *testutil.FakeTimeouts
	env      *ability.Env
	mgr      *connect.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	apps := testutil.NewFakeAppScheduler()
	timeouts := testutil.NewFakeTimeouts()
	env := testutil.NewEnv(apps, timeouts)
	mgr := connect.NewManager(100, env)
	t.Cleanup(mgr.Close)
	return &harness{apps: apps, timeouts: timeouts, env: env, mgr: mgr}
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.mgr.Flush(ctx))
}

// bringUp attaches a scheduler to the record for uri and completes INACTIVE
func (h *harness) bringUp(t *testing.T, uri string) (*ability.Record, *testutil.FakeScheduler) {
	t.Helper()
	rec := h.mgr.GetServiceRecordByElementName(uri)
	require.NotNil(t, rec)
	sched := testutil.NewFakeScheduler()
	require.NoError(t, h.mgr.AttachAbilityThread(sched, rec.Token()))
	require.NoError(t, h.mgr.AbilityTransitionDone(rec.Token(), ability.StateInactive))
	return rec, sched
}

func TestStartServiceCommands(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))

	require.NoError(t, h.mgr.StartAbility(req))
	assert.Equal(t, 1, h.apps.Count("LoadAbility"))
	assert.ErrorIs(t, h.mgr.StartAbility(req), errcode.StartServiceAbilityActivating)

	rec, sched := h.bringUp(t, req.Element().URI())
	assert.Equal(t, []ability.State{ability.StateInactive}, sched.Transactions())
	assert.Equal(t, []int{1}, sched.Commands())

	require.NoError(t, h.mgr.ScheduleCommandAbilityDone(rec.Token()))
	assert.Equal(t, ability.StateActive, rec.State())

	require.NoError(t, h.mgr.StartAbility(req))
	assert.Equal(t, []int{1, 2}, sched.Commands())
	assert.Equal(t, 1, h.apps.Count("LoadAbility"))
}

func TestConnectHandshake(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	cb := testutil.NewFakeConnectCallback("client")

	require.NoError(t, h.mgr.ConnectAbility(req, cb, ability.NilToken))
	rec, sched := h.bringUp(t, req.Element().URI())
	assert.Equal(t, 1, sched.Connects())
	assert.Empty(t, sched.Commands())

	require.NoError(t, h.mgr.ScheduleConnectAbilityDone(rec.Token(), "binder://svc"))
	assert.Equal(t, ability.StateActive, rec.State())
	require.Len(t, cb.Connects(), 1)
	assert.Equal(t, errcode.OK, cb.Connects()[0].Result)
	assert.Equal(t, ability.RemoteObject("binder://svc"), cb.Connects()[0].Remote)

	// same callback again is a no-op
	require.NoError(t, h.mgr.ConnectAbility(req, cb, ability.NilToken))
	assert.Len(t, h.mgr.GetConnectRecordListByCallback(cb), 1)

	// a second client completes without a new handshake
	other := testutil.NewFakeConnectCallback("other")
	require.NoError(t, h.mgr.ConnectAbility(req, other, ability.NilToken))
	h.flush(t)
	assert.Equal(t, 1, sched.Connects())
	require.Len(t, other.Connects(), 1)
	assert.Equal(t, errcode.OK, other.Connects()[0].Result)

	services, conns := h.mgr.Stats()
	assert.Equal(t, 1, services)
	assert.Equal(t, 2, conns)
}

func TestConnectNilCallback(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	assert.ErrorIs(t, h.mgr.ConnectAbility(req, nil, ability.NilToken), errcode.ErrInvalidValue)
}

func TestDisconnectTerminatesIdleService(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	a := testutil.NewFakeConnectCallback("a")
	b := testutil.NewFakeConnectCallback("b")

	require.NoError(t, h.mgr.ConnectAbility(req, a, ability.NilToken))
	rec, sched := h.bringUp(t, req.Element().URI())
	require.NoError(t, h.mgr.ScheduleConnectAbilityDone(rec.Token(), "binder://svc"))
	require.NoError(t, h.mgr.ConnectAbility(req, b, ability.NilToken))
	h.flush(t)

	// not the last binding: completes directly
	require.NoError(t, h.mgr.DisconnectAbility(b))
	h.flush(t)
	require.Len(t, b.Disconnects(), 1)
	assert.Empty(t, h.mgr.GetConnectRecordListByCallback(b))
	assert.Equal(t, 0, sched.Disconnects())
	assert.ErrorIs(t, h.mgr.DisconnectAbility(b), errcode.ConnectionNotExist)

	// last binding: waits for the service
	require.NoError(t, h.mgr.DisconnectAbility(a))
	assert.Equal(t, 1, sched.Disconnects())
	require.NoError(t, h.mgr.ScheduleDisconnectAbilityDone(rec.Token()))
	require.Len(t, a.Disconnects(), 1)
	assert.Equal(t, errcode.OK, a.Disconnects()[0].Result)

	// connected-only service with no bindings left is terminated
	assert.True(t, rec.IsTerminating())
	assert.Nil(t, h.mgr.GetServiceRecordByElementName(req.Element().URI()))
	assert.Same(t, rec, h.mgr.GetServiceRecordByToken(rec.Token()))
	assert.Equal(t, 1, sched.TransactionCount(ability.StateInitial))

	require.NoError(t, h.mgr.AbilityTransitionDone(rec.Token(), ability.StateInitial))
	assert.Equal(t, 1, h.apps.Count("TerminateAbility"))
	assert.False(t, h.mgr.HasToken(rec.Token()))
}

func TestLoadTimeoutRemovesRecord(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	cb := testutil.NewFakeConnectCallback("client")

	require.NoError(t, h.mgr.ConnectAbility(req, cb, ability.NilToken))
	rec := h.mgr.GetServiceRecordByElementName(req.Element().URI())
	require.NotNil(t, rec)
	require.True(t, h.timeouts.Pending(ability.EventLoadTimeout, rec.ID()))

	assert.True(t, h.mgr.OnTimeOut(ability.EventLoadTimeout, rec.ID()))
	assert.Nil(t, h.mgr.GetServiceRecordByElementName(req.Element().URI()))
	assert.False(t, h.env.Tokens.Valid(rec.Token()))
	require.Len(t, cb.Connects(), 1)
	assert.Equal(t, errcode.LoadAbilityTimeout, cb.Connects()[0].Result)
	assert.Empty(t, h.mgr.GetConnectRecordListByCallback(cb))

	// an attach that arrives after the timeout finds nothing
	assert.ErrorIs(t, h.mgr.AttachAbilityThread(testutil.NewFakeScheduler(), rec.Token()), errcode.ErrInvalidValue)
	assert.False(t, h.mgr.OnTimeOut(ability.EventLoadTimeout, rec.ID()))
}

func TestConnectTimeout(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	cb := testutil.NewFakeConnectCallback("client")

	require.NoError(t, h.mgr.ConnectAbility(req, cb, ability.NilToken))
	rec, _ := h.bringUp(t, req.Element().URI())

	assert.Eventually(t, func() bool { return len(cb.Connects()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, errcode.ConnectionTimeout, cb.Connects()[0].Result)
	assert.Eventually(t, func() bool {
		_, n := h.mgr.Stats()
		return n == 0
	}, time.Second, 10*time.Millisecond)
	assert.Same(t, rec, h.mgr.GetServiceRecordByElementName(req.Element().URI()))
}

func TestInactiveTimeoutContinuesHandshake(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	require.NoError(t, h.mgr.StartAbility(req))
	rec := h.mgr.GetServiceRecordByElementName(req.Element().URI())
	sched := testutil.NewFakeScheduler()
	require.NoError(t, h.mgr.AttachAbilityThread(sched, rec.Token()))

	assert.True(t, h.mgr.OnTimeOut(ability.EventInactiveTimeout, rec.ID()))
	assert.Equal(t, ability.StateInactive, rec.State())
	assert.ErrorIs(t, rec.LastError(), errcode.InnerErr)
	assert.Equal(t, []int{1}, sched.Commands())

	// the late report is stale
	assert.ErrorIs(t, h.mgr.AbilityTransitionDone(rec.Token(), ability.StateInactive), errcode.ErrInvalidValue)
}

func TestDeathRestartsAlwaysOnService(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.ohos.callui", "com.ohos.callui.ServiceAbility"))
	req.Want.SetParam("origin", "boot")
	cb := testutil.NewFakeConnectCallback("client")

	require.NoError(t, h.mgr.StartAbility(req))
	rec, _ := h.bringUp(t, req.Element().URI())
	require.NoError(t, h.mgr.ConnectAbility(req, cb, ability.NilToken))

	h.mgr.OnAbilityDied(rec.Token())
	h.flush(t)

	assert.Equal(t, 2, h.apps.Count("LoadAbility"))
	restarted := h.mgr.GetServiceRecordByElementName(req.Element().URI())
	require.NotNil(t, restarted)
	assert.NotSame(t, rec, restarted)
	assert.Equal(t, 1, restarted.RestartCount())
	assert.Equal(t, "boot", restarted.Want().StringParam("origin", ""))
	assert.False(t, h.env.Tokens.Valid(rec.Token()))

	require.Len(t, cb.Disconnects(), 1)
	assert.Equal(t, errcode.AbilityDied, cb.Disconnects()[0].Result)
}

func TestDeathOfOrdinaryServiceDisconnectsClients(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	a := testutil.NewFakeConnectCallback("a")
	b := testutil.NewFakeConnectCallback("b")

	require.NoError(t, h.mgr.ConnectAbility(req, a, ability.NilToken))
	rec, _ := h.bringUp(t, req.Element().URI())
	require.NoError(t, h.mgr.ScheduleConnectAbilityDone(rec.Token(), "binder://svc"))
	require.NoError(t, h.mgr.ConnectAbility(req, b, ability.NilToken))
	h.flush(t)
	conns := append(h.mgr.GetConnectRecordListByCallback(a), h.mgr.GetConnectRecordListByCallback(b)...)

	h.mgr.OnAbilityDied(rec.Token())
	h.flush(t)

	assert.Equal(t, 1, h.apps.Count("LoadAbility"))
	assert.Nil(t, h.mgr.GetServiceRecordByElementName(req.Element().URI()))
	for _, c := range conns {
		assert.True(t, c.IsAbnormal())
		assert.Equal(t, ability.ConnectionDisconnected, c.State())
	}
	assert.Equal(t, errcode.AbilityDied, a.Disconnects()[0].Result)
	assert.Equal(t, errcode.AbilityDied, b.Disconnects()[0].Result)
	_, n := h.mgr.Stats()
	assert.Equal(t, 0, n)
}

func TestTerminateByCaller(t *testing.T) {
	h := newHarness(t)
	caller := ability.NewRecord(testutil.Request(testutil.PageInfo("com.example", "Main", true)), h.env)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	req.CallerToken = caller.Token()
	req.RequestCode = 5

	require.NoError(t, h.mgr.StartAbility(req))
	rec, _ := h.bringUp(t, req.Element().URI())

	assert.ErrorIs(t, h.mgr.TerminateAbilityByCaller(caller.Token(), 6), errcode.NoFoundAbilityByCaller)
	require.NoError(t, h.mgr.TerminateAbilityByCaller(caller.Token(), 5))
	assert.True(t, rec.IsTerminating())

	// the terminate deadline forces the teardown through
	assert.True(t, h.mgr.OnTimeOut(ability.EventTerminateTimeout, rec.ID()))
	assert.Equal(t, 1, h.apps.Count("MoveToBackground"))
	assert.Equal(t, 1, h.apps.Count("TerminateAbility"))
	assert.False(t, h.mgr.HasToken(rec.Token()))
}

func TestStopServiceAbility(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	assert.ErrorIs(t, h.mgr.StopServiceAbility(req), errcode.ErrInvalidValue)

	require.NoError(t, h.mgr.StartAbility(req))
	rec, _ := h.bringUp(t, req.Element().URI())
	require.NoError(t, h.mgr.StopServiceAbility(req))
	assert.True(t, rec.IsTerminating())
	require.NoError(t, h.mgr.StopServiceAbility(req))
}

func TestStopConnectedServiceDefers(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	cb := testutil.NewFakeConnectCallback("client")

	require.NoError(t, h.mgr.StartAbility(req))
	require.NoError(t, h.mgr.ConnectAbility(req, cb, ability.NilToken))
	rec, _ := h.bringUp(t, req.Element().URI())
	require.NoError(t, h.mgr.ScheduleConnectAbilityDone(rec.Token(), "binder://svc"))

	require.NoError(t, h.mgr.StopServiceAbility(req))
	assert.False(t, rec.IsTerminating())
	assert.Equal(t, 0, rec.StartID())

	require.NoError(t, h.mgr.DisconnectAbility(cb))
	require.NoError(t, h.mgr.ScheduleDisconnectAbilityDone(rec.Token()))
	assert.True(t, rec.IsTerminating())
}

func TestDumpListsServices(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mgr.StartAbility(testutil.Request(testutil.ServiceInfo("com.example", "B"))))
	require.NoError(t, h.mgr.StartAbility(testutil.Request(testutil.ServiceInfo("com.example", "A"))))

	lines := h.mgr.Dump()
	assert.Contains(t, lines[0], "User ID #100")
	var names []string
	for _, l := range lines {
		if strings.Contains(l, "main name [") {
			names = append(names, l)
		}
	}
	require.Len(t, names, 2)
	assert.Contains(t, names[0], "[A]")
	assert.Contains(t, names[1], "[B]")
	assert.Len(t, h.mgr.ServiceElements(), 2)
}

func TestCloseReleasesServiceRecords(t *testing.T) {
	h := newHarness(t)
	req := testutil.Request(testutil.ServiceInfo("com.example", "Svc"))
	require.NoError(t, h.mgr.StartAbility(req))
	rec := h.mgr.GetServiceRecordByElementName(req.Element().URI())
	require.NotNil(t, rec)
	require.True(t, h.timeouts.Pending(ability.EventLoadTimeout, rec.ID()))

	var visited []*ability.Record
	h.mgr.VisitRecords(func(r *ability.Record) { visited = append(visited, r) })
	assert.Equal(t, []*ability.Record{rec}, visited)

	h.mgr.Close()
	assert.False(t, h.env.Tokens.Valid(rec.Token()))
	assert.False(t, h.timeouts.Pending(ability.EventLoadTimeout, rec.ID()))
	assert.Nil(t, h.mgr.GetServiceRecordByElementName(req.Element().URI()))
	assert.Zero(t, h.env.Tokens.Len())
}
