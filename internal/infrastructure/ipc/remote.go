package ipc

import (
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

var (
	_ ability.Scheduler       = (*RemoteScheduler)(nil)
	_ ability.ConnectCallback = (*RemoteCallback)(nil)
)

// Wire payloads, shared with the processes on the other end
type (
	TransactionCall struct {
		Want *types.Want           `json:"want,omitempty"`
		Info ability.LifecycleInfo `json:"info"`
	}
	WantCall struct {
		Want *types.Want `json:"want,omitempty"`
	}
	CommandCall struct {
		Want    *types.Want `json:"want,omitempty"`
		Restart bool        `json:"restart"`
		StartID int         `json:"start_id"`
	}
	ResultCall struct {
		RequestCode int         `json:"request_code"`
		ResultCode  int         `json:"result_code"`
		Want        *types.Want `json:"want,omitempty"`
	}
	ConnectDoneCall struct {
		Element    types.ElementName    `json:"element"`
		Remote     ability.RemoteObject `json:"remote,omitempty"`
		Result     int                  `json:"result"`
		ResultName string               `json:"result_name"`
	}
)

// RemoteScheduler forwards lifecycle calls to a hosted process. Calls only
// fail synchronously when the dialer is closed; delivery errors are logged.
type RemoteScheduler struct {
	lane *lane
}

// Endpoint returns the process endpoint
func (s *RemoteScheduler) Endpoint() string { return s.lane.endpoint }

// ScheduleAbilityTransaction implements ability.Scheduler
func (s *RemoteScheduler) ScheduleAbilityTransaction(want *types.Want, info ability.LifecycleInfo) error {
	return s.lane.post("ScheduleAbilityTransaction", "/transaction", TransactionCall{Want: want.Clone(), Info: info})
}

// ScheduleConnectAbility implements ability.Scheduler
func (s *RemoteScheduler) ScheduleConnectAbility(want *types.Want) error {
	return s.lane.post("ScheduleConnectAbility", "/connect", WantCall{Want: want.Clone()})
}

// ScheduleDisconnectAbility implements ability.Scheduler
func (s *RemoteScheduler) ScheduleDisconnectAbility(want *types.Want) error {
	return s.lane.post("ScheduleDisconnectAbility", "/disconnect", WantCall{Want: want.Clone()})
}

// ScheduleCommandAbility implements ability.Scheduler
func (s *RemoteScheduler) ScheduleCommandAbility(want *types.Want, restart bool, startID int) error {
	return s.lane.post("ScheduleCommandAbility", "/command", CommandCall{Want: want.Clone(), Restart: restart, StartID: startID})
}

// SendResult implements ability.Scheduler
func (s *RemoteScheduler) SendResult(requestCode, resultCode int, want *types.Want) error {
	return s.lane.post("SendResult", "/result", ResultCall{RequestCode: requestCode, ResultCode: resultCode, Want: want.Clone()})
}

// RemoteCallback forwards connection results to a client process
type RemoteCallback struct {
	lane *lane
}

// Endpoint returns the client endpoint
func (c *RemoteCallback) Endpoint() string { return c.lane.endpoint }

// OnAbilityConnectDone implements ability.ConnectCallback
func (c *RemoteCallback) OnAbilityConnectDone(element types.ElementName, remote ability.RemoteObject, result errcode.Code) {
	_ = c.lane.post("OnAbilityConnectDone", "/connect-done", ConnectDoneCall{
		Element: element, Remote: remote, Result: int(result), ResultName: result.Name(),
	})
}

// OnAbilityDisconnectDone implements ability.ConnectCallback
func (c *RemoteCallback) OnAbilityDisconnectDone(element types.ElementName, result errcode.Code) {
	_ = c.lane.post("OnAbilityDisconnectDone", "/disconnect-done", ConnectDoneCall{
		Element: element, Result: int(result), ResultName: result.Name(),
	})
}
