package ams_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/paths"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/openharmony/aafwk-standard-sub013/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// appCaller is an application of user 100
var appCaller = ams.Caller{UID: 100*ams.BaseUserRange + 10002, PID: 4242}

type fixture struct {
	svc     *ams.Service
	apps    *testutil.FakeAppScheduler
	bundles *testutil.FakeBundleManager
	layout  paths.Layout
}

type option func(*ams.Config)

func withTimeouts(tc config.TimeoutConfig) option {
	return func(c *ams.Config) { c.Timeouts = tc }
}

func withStacks() option {
	return func(c *ams.Config) { c.UseNewMission = false }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		apps:    testutil.NewFakeAppScheduler(),
		bundles: testutil.NewFakeBundleManager(),
		layout:  paths.NewLayout(t.TempDir()),
	}
	acc := &testutil.MockAccountManager{}
	acc.On("IsAccountExists", mock.Anything).Return(true)
	bc := &testutil.MockBroadcaster{}
	bc.On("BroadcastUserEvent", mock.Anything, mock.Anything).Return()

	cfg := ams.Config{
		AppScheduler:     f.apps,
		Bundles:          f.bundles,
		Accounts:         acc,
		Broadcaster:      bc,
		Layout:           f.layout,
		UseNewMission:    true,
		MinMissionID:     1,
		MaxMissionID:     100,
		Timeouts:         config.DefaultTimeouts(),
		BootWaitRetries:  3,
		BootWaitInterval: time.Millisecond,
		DefaultUserID:    100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := ams.New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Init(context.Background()))
	t.Cleanup(svc.Stop)
	f.svc = svc
	f.flush(t)
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Flush(ctx))
}

func (f *fixture) record(t *testing.T, element types.ElementName) *ability.Record {
	t.Helper()
	for _, rec := range f.svc.Env().Tokens.Records() {
		if rec.URI() == element.URI() {
			return rec
		}
	}
	t.Fatalf("no record for %s", element.URI())
	return nil
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := ams.New(ams.Config{Bundles: testutil.NewFakeBundleManager()})
	assert.Error(t, err)
	_, err = ams.New(ams.Config{AppScheduler: testutil.NewFakeAppScheduler()})
	assert.Error(t, err)
}

func TestInitWaitsForBundleManager(t *testing.T) {
	newFixture(t, func(c *ams.Config) {
		c.Bundles.(*testutil.FakeBundleManager).SetNotReady(2)
	})

	bundles := testutil.NewFakeBundleManager()
	bundles.SetNotReady(10)
	svc, err := ams.New(ams.Config{
		AppScheduler:     testutil.NewFakeAppScheduler(),
		Bundles:          bundles,
		BootWaitRetries:  3,
		BootWaitInterval: time.Millisecond,
	})
	require.NoError(t, err)
	defer svc.Stop()
	assert.ErrorIs(t, svc.Init(context.Background()), errcode.InnerErr)
	assert.False(t, svc.Ready())
}

func TestStartPageRoutesToCurrentUser(t *testing.T) {
	f := newFixture(t)
	info := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(info)

	assert.True(t, f.svc.Ready())
	assert.Equal(t, 100, f.svc.GetCurrentUserID())
	require.NoError(t, f.svc.StartAbility(types.NewWant(info.Element()), appCaller, ams.DefaultStartOptions()))

	assert.Equal(t, info.Element(), f.svc.GetTopAbility())
	assert.Equal(t, 1, f.apps.Count("LoadAbility"))
	rec := f.record(t, info.Element())
	assert.Equal(t, 100, rec.UserID())
	assert.True(t, f.svc.VerificationAllToken(rec.Token()))
	assert.Positive(t, f.svc.GetMissionIDByToken(rec.Token()))
	assert.Equal(t, ability.NilToken.String(), rec.Want().StringParam(types.ParamCallerToken, ""))
	assert.Equal(t, 4242, rec.Want().IntParam(types.ParamCallerPID, 0))

	sched := testutil.NewFakeScheduler()
	require.NoError(t, f.svc.AttachAbilityThread(sched, rec.Token()))
	require.NoError(t, f.svc.AbilityTransitionDone(rec.Token(), ability.StateActive))
	assert.Equal(t, ability.StateActive, rec.State())

	stats := f.svc.Stats()
	assert.Equal(t, 1, stats.Missions)
	assert.Equal(t, 2, stats.Users)
}

func TestStartChecks(t *testing.T) {
	f := newFixture(t)
	guarded := testutil.PageInfo("com.example", "Guarded", false)
	guarded.Permissions = []string{"ohos.permission.CAMERA"}
	hidden := testutil.ServiceInfo("com.other", "Hidden")
	hidden.Visible = false
	data := testutil.PageInfo("com.example", "Data", false)
	data.Type = types.AbilityTypeData
	f.bundles.Add(guarded)
	f.bundles.Add(hidden)
	f.bundles.Add(data)
	opts := ams.DefaultStartOptions()

	assert.ErrorIs(t, f.svc.StartAbility(nil, appCaller, opts), errcode.ErrInvalidValue)
	missing := types.NewWant(types.ElementName{BundleName: "com.none", AbilityName: "None"})
	assert.ErrorIs(t, f.svc.StartAbility(missing, appCaller, opts), errcode.ResolveAbilityErr)

	assert.ErrorIs(t, f.svc.StartAbility(types.NewWant(guarded.Element()), appCaller, opts), errcode.CheckPermissionFailed)
	f.bundles.Grant(appCaller.UID, "ohos.permission.CAMERA")
	assert.NoError(t, f.svc.StartAbility(types.NewWant(guarded.Element()), appCaller, opts))

	assert.ErrorIs(t, f.svc.StartAbility(types.NewWant(hidden.Element()), appCaller, opts), errcode.AbilityVisibleFalseDenyRequest)
	f.bundles.SetSystemApp(appCaller.UID)
	assert.NoError(t, f.svc.StartAbility(types.NewWant(hidden.Element()), appCaller, opts))

	assert.ErrorIs(t, f.svc.StartAbility(types.NewWant(data.Element()), appCaller, opts), errcode.WrongInterfaceCall)

	stale := appCaller
	stale.Token = ability.Token(1<<32 | 77)
	assert.ErrorIs(t, f.svc.StartAbility(types.NewWant(guarded.Element()), stale, opts), errcode.ErrInvalidValue)

	other := ams.StartOptions{UserID: 101, RequestCode: -1}
	assert.ErrorIs(t, f.svc.StartAbility(types.NewWant(guarded.Element()), appCaller, other), errcode.ErrInvalidValue)
}

func TestValidUserResolution(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 7, f.svc.GetValidUserID(7, appCaller.UID))
	assert.Equal(t, 100, f.svc.GetValidUserID(ams.UserIDFromCaller, appCaller.UID))
	assert.Equal(t, 101, f.svc.GetValidUserID(ams.UserIDFromCaller, 101*ams.BaseUserRange+1))
	assert.Equal(t, 100, f.svc.GetValidUserID(ams.UserIDFromCaller, 1000))

	assert.True(t, f.svc.JudgeMultiUserConcurrency(0))
	assert.True(t, f.svc.JudgeMultiUserConcurrency(100))
	assert.False(t, f.svc.JudgeMultiUserConcurrency(101))
}

func TestSingleUserServiceRunsAsSystemUser(t *testing.T) {
	f := newFixture(t)
	info := testutil.ServiceInfo("com.ohos.systemui", "Status")
	info.ApplicationInfo.SingleUser = true
	f.bundles.Add(info)

	require.NoError(t, f.svc.StartAbility(types.NewWant(info.Element()), appCaller, ams.DefaultStartOptions()))
	rec := f.record(t, info.Element())
	assert.Equal(t, 0, rec.UserID())
	assert.Equal(t, 1, f.svc.Stats().Services)

	assert.ErrorIs(t, f.svc.MinimizeAbility(rec.Token()), errcode.TargetAbilityNotPage)
	require.NoError(t, f.svc.StopServiceAbility(types.NewWant(info.Element()), appCaller, ams.UserIDFromCaller))
}

func TestConnectThroughService(t *testing.T) {
	f := newFixture(t)
	info := testutil.ServiceInfo("com.example", "Svc")
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(info)
	f.bundles.Add(page)
	cb := testutil.NewFakeConnectCallback("client")

	assert.ErrorIs(t, f.svc.ConnectAbility(types.NewWant(info.Element()), nil, appCaller, ams.UserIDFromCaller), errcode.ErrInvalidValue)
	assert.ErrorIs(t, f.svc.ConnectAbility(types.NewWant(page.Element()), cb, appCaller, ams.UserIDFromCaller), errcode.TargetAbilityNotService)
	assert.ErrorIs(t, f.svc.DisconnectAbility(cb), errcode.ConnectionNotExist)

	require.NoError(t, f.svc.ConnectAbility(types.NewWant(info.Element()), cb, appCaller, ams.UserIDFromCaller))
	rec := f.record(t, info.Element())
	sched := testutil.NewFakeScheduler()
	require.NoError(t, f.svc.AttachAbilityThread(sched, rec.Token()))
	require.NoError(t, f.svc.AbilityTransitionDone(rec.Token(), ability.StateInactive))
	require.NoError(t, f.svc.ScheduleConnectAbilityDone(rec.Token(), "binder://svc"))
	require.Len(t, cb.Connects(), 1)
	assert.Equal(t, errcode.OK, cb.Connects()[0].Result)

	require.NoError(t, f.svc.DisconnectAbility(cb))
	assert.Equal(t, 1, sched.Disconnects())
	require.NoError(t, f.svc.ScheduleDisconnectAbilityDone(rec.Token()))
	f.flush(t)
	require.Len(t, cb.Disconnects(), 1)
}

func TestHostedCallbacksNeedKnownTokens(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	rec := f.record(t, page.Element())

	unknown := ability.Token(1<<32 | 99)
	assert.ErrorIs(t, f.svc.AttachAbilityThread(testutil.NewFakeScheduler(), unknown), errcode.ErrInvalidValue)
	assert.ErrorIs(t, f.svc.AttachAbilityThread(nil, rec.Token()), errcode.ErrInvalidValue)
	assert.ErrorIs(t, f.svc.AbilityTransitionDone(unknown, ability.StateActive), errcode.ErrInvalidValue)
	assert.ErrorIs(t, f.svc.TerminateAbility(unknown, 0, nil), errcode.ErrInvalidValue)
	assert.ErrorIs(t, f.svc.ScheduleCommandAbilityDone(rec.Token()), errcode.TargetAbilityNotService)
	assert.False(t, f.svc.VerificationAllToken(unknown))
	assert.Equal(t, -1, f.svc.GetMissionIDByToken(unknown))

	f.svc.OnAbilityDied(rec.Token())
	assert.False(t, f.svc.VerificationAllToken(rec.Token()))
}

func TestLoadTimeoutRoutedToOwner(t *testing.T) {
	f := newFixture(t, withTimeouts(testutil.ShortTimeouts()))
	page := testutil.PageInfo("com.example", "Slow", false)
	f.bundles.Add(page)

	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	require.Eventually(t, func() bool { return f.apps.Count("TerminateAbility") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, f.svc.Stats().Abilities)
	assert.Equal(t, types.ElementName{}, f.svc.GetTopAbility())
}

func TestMissionOperationsNeedPermission(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))

	_, err := f.svc.GetMissionInfos(appCaller, 10)
	assert.ErrorIs(t, err, errcode.CheckPermissionFailed)

	f.bundles.Grant(appCaller.UID, ams.PermissionManageMissions)
	infos, err := f.svc.GetMissionInfos(appCaller, 10)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	info, err := f.svc.GetMissionInfo(appCaller, infos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Main", info.Label)

	listener := testutil.NewFakeMissionListener()
	require.NoError(t, f.svc.RegisterMissionListener(appCaller, listener))
	require.NoError(t, f.svc.UnregisterMissionListener(appCaller, listener))
}

func TestMoveMissionToFrontRelaunchesLockedMission(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	rec := f.record(t, page.Element())
	id := f.svc.GetMissionIDByToken(rec.Token())

	require.NoError(t, f.svc.LockMissionForCleanup(ams.SystemCaller, id))
	require.NoError(t, f.svc.TerminateAbility(rec.Token(), 0, nil))
	assert.False(t, f.svc.VerificationAllToken(rec.Token()))

	require.NoError(t, f.svc.MoveMissionToFront(ams.SystemCaller, id))
	assert.Equal(t, 2, f.apps.Count("LoadAbility"))
	again := f.record(t, page.Element())
	assert.Equal(t, id, f.svc.GetMissionIDByToken(again.Token()))

	assert.ErrorIs(t, f.svc.CleanMission(ams.SystemCaller, id), errcode.ErrInvalidValue)
	require.NoError(t, f.svc.UnlockMissionForCleanup(ams.SystemCaller, id))
	require.NoError(t, f.svc.CleanMission(ams.SystemCaller, id))
	assert.ErrorIs(t, f.svc.MoveMissionToFront(ams.SystemCaller, id), errcode.MissionNotFound)
}

func TestStackModeDoesNotRelaunch(t *testing.T) {
	f := newFixture(t, withStacks())
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))

	assert.ErrorIs(t, f.svc.MoveMissionToFront(ams.SystemCaller, 4242), errcode.MissionNotFound)
	_, err := os.Stat(f.layout.UserDir(100))
	assert.True(t, os.IsNotExist(err))
}

func TestUserSwitchAndStop(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	f.flush(t)
	_, err := os.Stat(f.layout.UserDir(100))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.StartUser(appCaller, 101), errcode.CallerIsNotSystemApp)
	require.NoError(t, f.svc.StartUser(ams.SystemCaller, 101))
	assert.Equal(t, 101, f.svc.GetCurrentUserID())
	assert.Equal(t, types.ElementName{}, f.svc.GetTopAbility())
	require.Eventually(t, func() bool { return !f.svc.ScreenFrozen() }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.svc.StopUser(ams.SystemCaller, 101), errcode.ErrInvalidValue)
	require.NoError(t, f.svc.StopUser(ams.SystemCaller, 100))
	assert.Equal(t, 1, f.apps.Count("KillProcessesByUserID"))
	_, err = os.Stat(f.layout.UserDir(100))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 2, f.svc.Stats().Users)
}

func TestStopUserReleasesItsRecords(t *testing.T) {
	f := newFixture(t)
	page := testutil.PageInfo("com.example", "Main", false)
	svc := testutil.ServiceInfo("com.example", "Svc")
	f.bundles.Add(page)
	f.bundles.Add(svc)
	caller := ams.Caller{UID: 101*ams.BaseUserRange + 10002, PID: 4343}

	require.NoError(t, f.svc.StartUser(ams.SystemCaller, 101))
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), caller, ams.DefaultStartOptions()))
	require.NoError(t, f.svc.StartAbility(types.NewWant(svc.Element()), caller, ams.DefaultStartOptions()))
	pageRec := f.record(t, page.Element())
	svcRec := f.record(t, svc.Element())
	require.NoError(t, f.svc.StartUser(ams.SystemCaller, 100))
	f.flush(t)
	tokens := f.svc.Stats().Tokens

	require.NoError(t, f.svc.StopUser(ams.SystemCaller, 101))
	f.flush(t)
	assert.False(t, f.svc.Env().Tokens.Valid(pageRec.Token()))
	assert.False(t, f.svc.Env().Tokens.Valid(svcRec.Token()))
	assert.False(t, f.svc.VerificationAllToken(svcRec.Token()))
	assert.Equal(t, tokens-2, f.svc.Stats().Tokens)
	assert.Equal(t, []string{"AbilityRecord ID #" + strconv.FormatInt(svcRec.ID(), 10) + " not found"},
		f.svc.DumpSys([]string{"-i", strconv.FormatInt(svcRec.ID(), 10)}))
}

func TestHomeStartedOnSwitch(t *testing.T) {
	home := testutil.PageInfo("com.ohos.launcher", "MainAbility", false)
	home.IsLauncherAbility = true
	f := newFixture(t, func(c *ams.Config) {
		c.Home = home.Element()
		c.Bundles.(*testutil.FakeBundleManager).Add(home)
	})
	assert.Equal(t, home.Element(), f.svc.GetTopAbility())

	rec := f.record(t, home.Element())
	assert.ErrorIs(t, f.svc.TerminateAbility(rec.Token(), 0, nil), errcode.TerminateLauncherDeny)
}

func TestKillAndUninstall(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.KillProcess(""), errcode.ErrInvalidValue)
	require.NoError(t, f.svc.KillProcess("com.example"))
	assert.Equal(t, 1, f.apps.Count("KillApplication"))

	page := testutil.PageInfo("com.example", "Main", false)
	f.bundles.Add(page)
	require.NoError(t, f.svc.StartAbility(types.NewWant(page.Element()), appCaller, ams.DefaultStartOptions()))
	f.svc.UninstallApp("com.example", page.ApplicationInfo.UID)
	infos, err := f.svc.GetMissionInfos(ams.SystemCaller, 10)
	require.NoError(t, err)
	assert.Empty(t, infos)
}
