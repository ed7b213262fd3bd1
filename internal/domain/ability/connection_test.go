package ability_test

import (
	"testing"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedService(t *testing.T) (*ability.Record, *testutil.FakeScheduler) {
	t.Helper()
	f := newFixture()
	svc := ability.NewRecord(testutil.Request(testutil.ServiceInfo("com.example", "Svc")), f.env)
	require.NoError(t, svc.LoadAbility())
	sched := testutil.NewFakeScheduler()
	svc.SetScheduler(sched)
	svc.SetRemoteObject("binder://svc")
	return svc, sched
}

func TestConnectionHandshake(t *testing.T) {
	svc, sched := connectedService(t)
	cb := testutil.NewFakeConnectCallback("client")
	conn := ability.NewConnection(ability.NilToken, svc, cb)
	svc.AddConnection(conn)

	assert.Equal(t, ability.ConnectionInit, conn.State())
	assert.ErrorIs(t, conn.ScheduleConnectAbilityDone(), errcode.InvalidConnectionState)

	require.NoError(t, conn.ConnectAbility())
	assert.Equal(t, ability.ConnectionConnecting, conn.State())
	assert.Equal(t, 1, sched.Connects())
	assert.ErrorIs(t, conn.ConnectAbility(), errcode.InvalidConnectionState)
	require.NoError(t, conn.ScheduleConnectAbilityDone())

	conn.CompleteConnect(errcode.OK)
	assert.Equal(t, ability.ConnectionConnected, conn.State())
	done := cb.Connects()
	require.Len(t, done, 1)
	assert.Equal(t, errcode.OK, done[0].Result)
	assert.Equal(t, ability.RemoteObject("binder://svc"), done[0].Remote)
	assert.Equal(t, "Svc", done[0].Element.AbilityName)
}

func TestDisconnectLastConnection(t *testing.T) {
	svc, sched := connectedService(t)
	cb := testutil.NewFakeConnectCallback("client")
	conn := ability.NewConnection(ability.NilToken, svc, cb)
	svc.AddConnection(conn)
	conn.SetState(ability.ConnectionConnected)

	require.NoError(t, conn.DisconnectAbility())
	assert.Equal(t, ability.ConnectionDisconnecting, conn.State())
	assert.Equal(t, 1, sched.Disconnects())
	assert.Same(t, conn, svc.DisconnectingConnection())

	require.NoError(t, conn.ScheduleDisconnectAbilityDone())
	assert.Equal(t, ability.ConnectionDisconnected, conn.State())
	require.Len(t, cb.Disconnects(), 1)
	assert.Equal(t, errcode.OK, cb.Disconnects()[0].Result)
}

func TestDisconnectSharedConnection(t *testing.T) {
	svc, sched := connectedService(t)
	a := ability.NewConnection(ability.NilToken, svc, testutil.NewFakeConnectCallback("a"))
	b := ability.NewConnection(ability.NilToken, svc, testutil.NewFakeConnectCallback("b"))
	svc.AddConnection(a)
	svc.AddConnection(b)
	svc.AddConnection(a)
	require.Equal(t, 2, svc.ConnectionCount())
	a.SetState(ability.ConnectionConnected)

	require.NoError(t, a.DisconnectAbility())
	assert.Equal(t, ability.ConnectionDisconnected, a.State())
	assert.Equal(t, 0, sched.Disconnects())
	assert.ErrorIs(t, a.DisconnectAbility(), errcode.InvalidConnectionState)
}

func TestCompleteDisconnectOnDeath(t *testing.T) {
	svc, _ := connectedService(t)
	cb := testutil.NewFakeConnectCallback("client")
	conn := ability.NewConnection(ability.NilToken, svc, cb)
	conn.SetState(ability.ConnectionConnected)

	conn.CompleteDisconnect(errcode.OK, true)
	assert.True(t, conn.IsAbnormal())
	assert.Equal(t, ability.ConnectionDisconnected, conn.State())
	require.Len(t, cb.Disconnects(), 1)
	assert.Equal(t, errcode.AbilityDied, cb.Disconnects()[0].Result)
}

func TestConnectionLookupByCallback(t *testing.T) {
	svc, _ := connectedService(t)
	cb := testutil.NewFakeConnectCallback("client")
	other := testutil.NewFakeConnectCallback("other")
	conn := ability.NewConnection(ability.NilToken, svc, cb)
	svc.AddConnection(conn)

	assert.Same(t, conn, svc.ConnectionFor(cb))
	assert.Nil(t, svc.ConnectionFor(other))

	conn.SetState(ability.ConnectionConnecting)
	assert.Len(t, svc.ConnectingConnections(), 1)
	svc.RemoveConnection(conn)
	assert.Equal(t, 0, svc.ConnectionCount())

	second := ability.NewConnection(ability.NilToken, svc, other)
	assert.Greater(t, second.ID(), conn.ID())
}
