package ability

import (
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/config"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

// LifecycleInfo accompanies a lifecycle transaction sent to the hosted
// process
type LifecycleInfo struct {
	State     State `json:"state"`
	IsNewWant bool  `json:"is_new_want"`
	MissionID int   `json:"mission_id,omitempty"`
}

// Scheduler is the hosted process side of one ability. Implementations
// deliver calls asynchronously; a hosted process answers through the
// manager's callback surface, never from inside these methods.
type Scheduler interface {
	ScheduleAbilityTransaction(want *types.Want, info LifecycleInfo) error
	ScheduleConnectAbility(want *types.Want) error
	ScheduleDisconnectAbility(want *types.Want) error
	ScheduleCommandAbility(want *types.Want, restart bool, startID int) error
	SendResult(requestCode, resultCode int, want *types.Want) error
}

// AppScheduler is the process launcher
type AppScheduler interface {
	LoadAbility(token, callerToken Token, info types.AbilityInfo, app types.ApplicationInfo, want *types.Want) error
	MoveToForeground(token Token) error
	MoveToBackground(token Token) error
	TerminateAbility(token Token) error
	KillApplication(bundleName string) error
	KillProcessesByUserID(userID int) error
	UpdateAbilityState(token Token, state State) error
	GetRunningProcessInfoByToken(token Token) (types.RunningProcessInfo, error)
}

// RemoteObject is the handle a connected service hands back to its clients
type RemoteObject string

// ConnectCallback is the client side of a service binding. Implementations
// must be comparable (pointer types); the connect manager keys connections
// by callback.
type ConnectCallback interface {
	OnAbilityConnectDone(element types.ElementName, remote RemoteObject, result errcode.Code)
	OnAbilityDisconnectDone(element types.ElementName, result errcode.Code)
}

// TimeoutSink arms and cancels lifecycle timeout events. The AMS event
// handler implements it and routes fired events to the owning manager.
type TimeoutSink interface {
	SendEvent(ev eventloop.Event, delay time.Duration) bool
	RemoveEvent(id uint32, param int64)
}

// Env is the process-wide context handed to every record at construction
type Env struct {
	AppScheduler AppScheduler
	Events       TimeoutSink
	Tokens       *TokenTable
	Timeouts     config.TimeoutConfig
	Logger       *logging.Logger
	Metrics      *monitoring.Metrics
}

func (e *Env) timeoutFor(target State) time.Duration {
	switch target {
	case StateActive:
		return e.Timeouts.Active
	case StateInactive:
		return e.Timeouts.Inactive
	case StateBackground:
		return e.Timeouts.Background
	case StateInitial:
		return e.Timeouts.Terminate
	case StateForegroundNew:
		return e.Timeouts.ForegroundNew
	case StateBackgroundNew:
		return e.Timeouts.BackgroundNew
	}
	return 0
}

// Request is a resolved start or connect request
type Request struct {
	Want         *types.Want
	Info         types.AbilityInfo
	App          types.ApplicationInfo
	RequestCode  int
	CallerToken  Token
	CallerUID    int
	UserID       int
	StartSetting types.AbilityStartSetting
	Connect      ConnectCallback
}

// Element returns the target element of the request
func (r *Request) Element() types.ElementName {
	return r.Info.Element()
}

// IsStageModel reports whether the target uses the stage lifecycle
func (r *Request) IsStageModel() bool {
	return r.Info.IsStageBasedModel
}
