// Package testutil provides collaborator fakes and fixtures for manager
// tests.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/stretchr/testify/mock"
)

// ShortTimeouts returns handshake timeouts small enough for tests
func ShortTimeouts() config.TimeoutConfig {
	return config.TimeoutConfig{
		Load:          80 * time.Millisecond,
		Active:        80 * time.Millisecond,
		Inactive:      80 * time.Millisecond,
		Background:    80 * time.Millisecond,
		Terminate:     80 * time.Millisecond,
		Connect:       80 * time.Millisecond,
		Disconnect:    80 * time.Millisecond,
		Command:       80 * time.Millisecond,
		ForegroundNew: 80 * time.Millisecond,
		BackgroundNew: 80 * time.Millisecond,
		UserSwitch:    80 * time.Millisecond,
	}
}

// NewEnv builds a record environment around the given fakes
func NewEnv(apps ability.AppScheduler, events ability.TimeoutSink) *ability.Env {
	return &ability.Env{
		AppScheduler: apps,
		Events:       events,
		Tokens:       ability.NewTokenTable(),
		Timeouts:     ShortTimeouts(),
		Logger:       logging.Nop(),
	}
}

// ============================================================================
// Fixtures
// ============================================================================

// ServiceInfo returns metadata for a visible service
func ServiceInfo(bundle, name string) types.AbilityInfo {
	return types.AbilityInfo{
		Name:       name,
		BundleName: bundle,
		Type:       types.AbilityTypeService,
		Visible:    true,
		Process:    bundle,
		ApplicationInfo: types.ApplicationInfo{
			Name:       bundle,
			BundleName: bundle,
			UID:        20010001,
		},
	}
}

// PageInfo returns metadata for a visible page
func PageInfo(bundle, name string, stage bool) types.AbilityInfo {
	return types.AbilityInfo{
		Name:              name,
		BundleName:        bundle,
		Type:              types.AbilityTypePage,
		LaunchMode:        types.LaunchModeStandard,
		Visible:           true,
		IsStageBasedModel: stage,
		Label:             name,
		ApplicationInfo: types.ApplicationInfo{
			Name:       bundle,
			BundleName: bundle,
			UID:        20010002,
		},
	}
}

// Request builds a resolved request for info
func Request(info types.AbilityInfo) *ability.Request {
	return &ability.Request{
		Want:        types.NewWant(info.Element()),
		Info:        info,
		App:         info.ApplicationInfo,
		RequestCode: -1,
		UserID:      100,
	}
}

// ============================================================================
// App scheduler
// ============================================================================

// AppCall is one recorded app scheduler call
type AppCall struct {
	Method string
	Token  ability.Token
	State  ability.State
	Arg    string
}

// FakeAppScheduler records every call. Set LoadErr to fail LoadAbility.
type FakeAppScheduler struct {
	mu      sync.Mutex
	calls   []AppCall
	LoadErr error
}

// NewFakeAppScheduler creates an empty recorder
func NewFakeAppScheduler() *FakeAppScheduler {
	return &FakeAppScheduler{}
}

func (f *FakeAppScheduler) record(c AppCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// LoadAbility implements ability.AppScheduler
func (f *FakeAppScheduler) LoadAbility(token, _ ability.Token, info types.AbilityInfo, _ types.ApplicationInfo, _ *types.Want) error {
	f.record(AppCall{Method: "LoadAbility", Token: token, Arg: info.Element().URI()})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.LoadErr
}

// MoveToForeground implements ability.AppScheduler
func (f *FakeAppScheduler) MoveToForeground(token ability.Token) error {
	f.record(AppCall{Method: "MoveToForeground", Token: token})
	return nil
}

// MoveToBackground implements ability.AppScheduler
func (f *FakeAppScheduler) MoveToBackground(token ability.Token) error {
	f.record(AppCall{Method: "MoveToBackground", Token: token})
	return nil
}

// TerminateAbility implements ability.AppScheduler
func (f *FakeAppScheduler) TerminateAbility(token ability.Token) error {
	f.record(AppCall{Method: "TerminateAbility", Token: token})
	return nil
}

// KillApplication implements ability.AppScheduler
func (f *FakeAppScheduler) KillApplication(bundleName string) error {
	f.record(AppCall{Method: "KillApplication", Arg: bundleName})
	return nil
}

// KillProcessesByUserID implements ability.AppScheduler
func (f *FakeAppScheduler) KillProcessesByUserID(userID int) error {
	f.record(AppCall{Method: "KillProcessesByUserID", Arg: fmt.Sprint(userID)})
	return nil
}

// UpdateAbilityState implements ability.AppScheduler
func (f *FakeAppScheduler) UpdateAbilityState(token ability.Token, state ability.State) error {
	f.record(AppCall{Method: "UpdateAbilityState", Token: token, State: state})
	return nil
}

// GetRunningProcessInfoByToken implements ability.AppScheduler
func (f *FakeAppScheduler) GetRunningProcessInfoByToken(token ability.Token) (types.RunningProcessInfo, error) {
	f.record(AppCall{Method: "GetRunningProcessInfoByToken", Token: token})
	return types.RunningProcessInfo{ProcessName: "fake", PID: 1000, State: "FOREGROUND"}, nil
}

// Calls returns every call with the given method
func (f *FakeAppScheduler) Calls(method string) []AppCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AppCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was called
func (f *FakeAppScheduler) Count(method string) int {
	return len(f.Calls(method))
}

// ============================================================================
// Hosted process
// ============================================================================

// FakeScheduler records what the manager asks a hosted process to do. It
// never calls back; tests drive the manager's done callbacks themselves.
// When Stage is set, lifecycle transactions are also applied to it.
type FakeScheduler struct {
	mu           sync.Mutex
	transactions []ability.State
	connects     int
	disconnects  int
	commands     []int
	results      []ability.AbilityResult
	Stage        *ability.StageImpl
}

// NewFakeScheduler creates a scheduler with a stage implementation attached
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{Stage: ability.NewStageImpl(nil)}
}

// ScheduleAbilityTransaction implements ability.Scheduler
func (f *FakeScheduler) ScheduleAbilityTransaction(_ *types.Want, info ability.LifecycleInfo) error {
	f.mu.Lock()
	f.transactions = append(f.transactions, info.State)
	stage := f.Stage
	f.mu.Unlock()
	if stage != nil {
		stage.HandleTransaction(info.State)
	}
	return nil
}

// ScheduleConnectAbility implements ability.Scheduler
func (f *FakeScheduler) ScheduleConnectAbility(*types.Want) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

// ScheduleDisconnectAbility implements ability.Scheduler
func (f *FakeScheduler) ScheduleDisconnectAbility(*types.Want) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

// ScheduleCommandAbility implements ability.Scheduler
func (f *FakeScheduler) ScheduleCommandAbility(_ *types.Want, _ bool, startID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, startID)
	return nil
}

// SendResult implements ability.Scheduler
func (f *FakeScheduler) SendResult(requestCode, resultCode int, want *types.Want) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, ability.AbilityResult{RequestCode: requestCode, ResultCode: resultCode, Want: want})
	return nil
}

// Transactions returns the lifecycle targets received
func (f *FakeScheduler) Transactions() []ability.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ability.State(nil), f.transactions...)
}

// TransactionCount returns how many transactions targeted state
func (f *FakeScheduler) TransactionCount(state ability.State) int {
	n := 0
	for _, s := range f.Transactions() {
		if s == state {
			n++
		}
	}
	return n
}

// Connects returns the number of connect requests received
func (f *FakeScheduler) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects returns the number of disconnect requests received
func (f *FakeScheduler) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// Commands returns the start ids received
func (f *FakeScheduler) Commands() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.commands...)
}

// Results returns the results delivered
func (f *FakeScheduler) Results() []ability.AbilityResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ability.AbilityResult(nil), f.results...)
}

// ============================================================================
// Connection callback
// ============================================================================

// ConnectDone is one recorded connect or disconnect result
type ConnectDone struct {
	Element types.ElementName
	Remote  ability.RemoteObject
	Result  errcode.Code
}

// FakeConnectCallback records connect and disconnect results
type FakeConnectCallback struct {
	Name        string
	mu          sync.Mutex
	connects    []ConnectDone
	disconnects []ConnectDone
}

// NewFakeConnectCallback creates a named callback
func NewFakeConnectCallback(name string) *FakeConnectCallback {
	return &FakeConnectCallback{Name: name}
}

// OnAbilityConnectDone implements ability.ConnectCallback
func (f *FakeConnectCallback) OnAbilityConnectDone(element types.ElementName, remote ability.RemoteObject, result errcode.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, ConnectDone{Element: element, Remote: remote, Result: result})
}

// OnAbilityDisconnectDone implements ability.ConnectCallback
func (f *FakeConnectCallback) OnAbilityDisconnectDone(element types.ElementName, result errcode.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, ConnectDone{Element: element, Result: result})
}

// Connects returns recorded connect results
func (f *FakeConnectCallback) Connects() []ConnectDone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConnectDone(nil), f.connects...)
}

// Disconnects returns recorded disconnect results
func (f *FakeConnectCallback) Disconnects() []ConnectDone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConnectDone(nil), f.disconnects...)
}

// ============================================================================
// Timeout sink
// ============================================================================

// FakeTimeouts records armed timeout events without ever firing them
type FakeTimeouts struct {
	mu      sync.Mutex
	pending map[eventloop.Event]int
	sent    []eventloop.Event
}

// NewFakeTimeouts creates an empty sink
func NewFakeTimeouts() *FakeTimeouts {
	return &FakeTimeouts{pending: make(map[eventloop.Event]int)}
}

// SendEvent implements ability.TimeoutSink
func (f *FakeTimeouts) SendEvent(ev eventloop.Event, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[ev]++
	f.sent = append(f.sent, ev)
	return true
}

// RemoveEvent implements ability.TimeoutSink
func (f *FakeTimeouts) RemoveEvent(id uint32, param int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, eventloop.Event{ID: id, Param: param})
}

// Pending reports whether an event is armed
func (f *FakeTimeouts) Pending(id uint32, param int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[eventloop.Event{ID: id, Param: param}] > 0
}

// Sent returns every event armed so far
func (f *FakeTimeouts) Sent() []eventloop.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]eventloop.Event(nil), f.sent...)
}

// ============================================================================
// Bundle manager
// ============================================================================

// FakeBundleManager resolves wants from an in-memory catalog
type FakeBundleManager struct {
	mu          sync.Mutex
	abilities   map[string]types.AbilityInfo
	extensions  map[string]types.ExtensionAbilityInfo
	systemUIDs  map[int]bool
	granted     map[string]bool
	notReady    int
	QueryCalled int
}

// NewFakeBundleManager creates a catalog holding infos
func NewFakeBundleManager(infos ...types.AbilityInfo) *FakeBundleManager {
	f := &FakeBundleManager{
		abilities:  make(map[string]types.AbilityInfo),
		extensions: make(map[string]types.ExtensionAbilityInfo),
		systemUIDs: make(map[int]bool),
		granted:    make(map[string]bool),
	}
	for _, info := range infos {
		f.Add(info)
	}
	return f
}

func catalogKey(bundle, name string) string {
	return bundle + "/" + name
}

// Add registers an ability
func (f *FakeBundleManager) Add(info types.AbilityInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abilities[catalogKey(info.BundleName, info.Name)] = info
}

// AddExtension registers an extension
func (f *FakeBundleManager) AddExtension(info types.ExtensionAbilityInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extensions[catalogKey(info.BundleName, info.Name)] = info
}

// SetSystemApp marks uid as a system app
func (f *FakeBundleManager) SetSystemApp(uid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemUIDs[uid] = true
}

// Grant gives uid a permission
func (f *FakeBundleManager) Grant(uid int, permission string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted[fmt.Sprintf("%d:%s", uid, permission)] = true
}

// SetNotReady makes Ready report false for the next n calls
func (f *FakeBundleManager) SetNotReady(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notReady = n
}

// Ready reports whether the catalog can be queried
func (f *FakeBundleManager) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notReady > 0 {
		f.notReady--
		return false
	}
	return true
}

// QueryAbilityInfo resolves a want to ability metadata
func (f *FakeBundleManager) QueryAbilityInfo(want *types.Want, _ int) (types.AbilityInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QueryCalled++
	info, ok := f.abilities[catalogKey(want.Element.BundleName, want.Element.AbilityName)]
	return info, ok
}

// QueryExtensionAbilityInfos resolves a want to extension metadata
func (f *FakeBundleManager) QueryExtensionAbilityInfos(want *types.Want, _ int) []types.ExtensionAbilityInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.extensions[catalogKey(want.Element.BundleName, want.Element.AbilityName)]; ok {
		return []types.ExtensionAbilityInfo{info}
	}
	return nil
}

// GetBundleInfo returns the abilities of a bundle
func (f *FakeBundleManager) GetBundleInfo(name string, _ int) (types.BundleInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out types.BundleInfo
	for _, info := range f.abilities {
		if info.BundleName == name {
			out.Name = name
			out.UID = info.ApplicationInfo.UID
			out.ApplicationInfo = info.ApplicationInfo
			out.Abilities = append(out.Abilities, info)
		}
	}
	return out, out.Name != ""
}

// CheckIsSystemAppByUID reports whether uid belongs to a system app
func (f *FakeBundleManager) CheckIsSystemAppByUID(uid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.systemUIDs[uid]
}

// VerifyPermission reports whether uid holds permission
func (f *FakeBundleManager) VerifyPermission(uid int, permission string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted[fmt.Sprintf("%d:%s", uid, permission)]
}

// ============================================================================
// Mocks
// ============================================================================

// MockBroadcaster is a testify mock of the user lifecycle broadcaster
type MockBroadcaster struct {
	mock.Mock
}

// BroadcastUserEvent mocks the broadcast
func (m *MockBroadcaster) BroadcastUserEvent(event string, userID int) {
	m.Called(event, userID)
}

// MockAccountManager is a testify mock of the OS account query
type MockAccountManager struct {
	mock.Mock
}

// IsAccountExists mocks the account lookup
func (m *MockAccountManager) IsAccountExists(userID int) bool {
	return m.Called(userID).Bool(0)
}

// ============================================================================
// Mission listener
// ============================================================================

// MissionEvent is one notification received by FakeMissionListener
type MissionEvent struct {
	Kind      string
	MissionID int
}

// FakeMissionListener records mission notifications in arrival order
type FakeMissionListener struct {
	mu     sync.Mutex
	events []MissionEvent
}

// NewFakeMissionListener creates an empty recorder
func NewFakeMissionListener() *FakeMissionListener {
	return &FakeMissionListener{}
}

func (f *FakeMissionListener) add(kind string, id int) {
	f.mu.Lock()
	f.events = append(f.events, MissionEvent{Kind: kind, MissionID: id})
	f.mu.Unlock()
}

// OnMissionCreated implements mission.Listener
func (f *FakeMissionListener) OnMissionCreated(id int) { f.add("created", id) }

// OnMissionDestroyed implements mission.Listener
func (f *FakeMissionListener) OnMissionDestroyed(id int) { f.add("destroyed", id) }

// OnMissionSnapshotChanged implements mission.Listener
func (f *FakeMissionListener) OnMissionSnapshotChanged(id int) { f.add("snapshot", id) }

// OnMissionMovedToFront implements mission.Listener
func (f *FakeMissionListener) OnMissionMovedToFront(id int) { f.add("front", id) }

// OnMissionLabelUpdated implements mission.Listener
func (f *FakeMissionListener) OnMissionLabelUpdated(id int) { f.add("label", id) }

// Events returns the notifications received so far
func (f *FakeMissionListener) Events() []MissionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MissionEvent(nil), f.events...)
}

// Kinds returns the kinds received for missionID
func (f *FakeMissionListener) Kinds(missionID int) []string {
	var out []string
	for _, e := range f.Events() {
		if e.MissionID == missionID {
			out = append(out, e.Kind)
		}
	}
	return out
}
