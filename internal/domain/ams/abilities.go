package ams

import (
	"errors"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// StartAbility starts the component want names. Pages go to the page
// manager of the resolved user, services and extensions to its connect
// manager.
func (s *Service) StartAbility(want *types.Want, caller Caller, opts StartOptions) error {
	req, err := s.prepare(want, caller, opts)
	if err != nil {
		return err
	}
	switch {
	case req.Info.Type == types.AbilityTypePage:
		um, err := s.pageManagersFor(req.UserID)
		if err != nil {
			return err
		}
		return um.pages.StartAbility(req)
	case req.Info.Type.IsConnectable():
		um, err := s.ensureUser(req.UserID)
		if err != nil {
			return err
		}
		return um.connect.StartAbility(req)
	case req.Info.Type == types.AbilityTypeData:
		return errcode.WrongInterfaceCall
	default:
		return errcode.ResolveAbilityErr
	}
}

// TerminateAbility finishes the ability behind token, handing resultCode
// and resultWant to its caller when it is a page
func (s *Service) TerminateAbility(token ability.Token, resultCode int, resultWant *types.Want) error {
	o, ok := s.findOwner(token)
	if !ok {
		return errcode.ErrInvalidValue
	}
	if o.service {
		return o.managers.connect.TerminateAbility(token)
	}
	return o.managers.pages.TerminateAbility(token, resultCode, resultWant)
}

// TerminateAbilityByCaller finishes what callerToken started with
// requestCode
func (s *Service) TerminateAbilityByCaller(callerToken ability.Token, requestCode int) error {
	o, ok := s.findOwner(callerToken)
	if !ok {
		return errcode.ErrInvalidValue
	}
	err := o.managers.pages.TerminateAbilityByCaller(callerToken, requestCode)
	if errors.Is(err, errcode.NoFoundAbilityByCaller) {
		return o.managers.connect.TerminateAbilityByCaller(callerToken, requestCode)
	}
	return err
}

// MinimizeAbility moves the page behind token to the background
func (s *Service) MinimizeAbility(token ability.Token) error {
	o, ok := s.findOwner(token)
	if !ok {
		return errcode.ErrInvalidValue
	}
	if o.service {
		return errcode.TargetAbilityNotPage
	}
	return o.managers.pages.MinimizeAbility(token)
}

// StopServiceAbility stops a started service
func (s *Service) StopServiceAbility(want *types.Want, caller Caller, userID int) error {
	req, err := s.prepare(want, caller, StartOptions{UserID: userID, RequestCode: -1})
	if err != nil {
		return err
	}
	if !req.Info.Type.IsConnectable() {
		return errcode.TargetAbilityNotService
	}
	um, ok := s.managersOf(req.UserID)
	if !ok {
		return nil
	}
	return um.connect.StopServiceAbility(req)
}

// ConnectAbility binds cb to the service or extension want names
func (s *Service) ConnectAbility(want *types.Want, cb ability.ConnectCallback, caller Caller, userID int) error {
	if cb == nil {
		return errcode.ErrInvalidValue
	}
	req, err := s.prepare(want, caller, StartOptions{UserID: userID, RequestCode: -1})
	if err != nil {
		return err
	}
	if !req.Info.Type.IsConnectable() {
		return errcode.TargetAbilityNotService
	}
	req.Connect = cb
	um, err := s.ensureUser(req.UserID)
	if err != nil {
		return err
	}
	return um.connect.ConnectAbility(req, cb, caller.Token)
}

// DisconnectAbility releases every binding cb holds, in every user
func (s *Service) DisconnectAbility(cb ability.ConnectCallback) error {
	if cb == nil {
		return errcode.ErrInvalidValue
	}
	found := false
	for _, um := range s.snapshotManagers() {
		if len(um.connect.GetConnectRecordListByCallback(cb)) == 0 {
			continue
		}
		found = true
		if err := um.connect.DisconnectAbility(cb); err != nil {
			return err
		}
	}
	if !found {
		return errcode.ConnectionNotExist
	}
	return nil
}

// ============================================================================
// Hosted process callbacks
// ============================================================================

// AttachAbilityThread binds the hosted process scheduler to token
func (s *Service) AttachAbilityThread(scheduler ability.Scheduler, token ability.Token) error {
	if scheduler == nil {
		return errcode.ErrInvalidValue
	}
	o, ok := s.findOwner(token)
	if !ok {
		return errcode.ErrInvalidValue
	}
	if o.service {
		return o.managers.connect.AttachAbilityThread(scheduler, token)
	}
	return o.managers.pages.AttachAbilityThread(scheduler, token)
}

// AbilityTransitionDone reports that token reached state
func (s *Service) AbilityTransitionDone(token ability.Token, state ability.State) error {
	o, ok := s.findOwner(token)
	if !ok {
		return errcode.ErrInvalidValue
	}
	if o.service {
		return o.managers.connect.AbilityTransitionDone(token, state)
	}
	return o.managers.pages.AbilityTransitionDone(token, state)
}

// ScheduleConnectAbilityDone reports that the service behind token bound
func (s *Service) ScheduleConnectAbilityDone(token ability.Token, remote ability.RemoteObject) error {
	o, err := s.serviceOwner(token)
	if err != nil {
		return err
	}
	return o.managers.connect.ScheduleConnectAbilityDone(token, remote)
}

// ScheduleDisconnectAbilityDone reports that the service behind token
// unbound its oldest disconnecting client
func (s *Service) ScheduleDisconnectAbilityDone(token ability.Token) error {
	o, err := s.serviceOwner(token)
	if err != nil {
		return err
	}
	return o.managers.connect.ScheduleDisconnectAbilityDone(token)
}

// ScheduleCommandAbilityDone reports that the service behind token handled
// its command
func (s *Service) ScheduleCommandAbilityDone(token ability.Token) error {
	o, err := s.serviceOwner(token)
	if err != nil {
		return err
	}
	return o.managers.connect.ScheduleCommandAbilityDone(token)
}

func (s *Service) serviceOwner(token ability.Token) (owner, error) {
	o, ok := s.findOwner(token)
	if !ok {
		return owner{}, errcode.ErrInvalidValue
	}
	if !o.service {
		return owner{}, errcode.TargetAbilityNotService
	}
	return o, nil
}

// OnAbilityDied handles the death of the process hosting token
func (s *Service) OnAbilityDied(token ability.Token) {
	o, ok := s.findOwner(token)
	if !ok {
		s.log.Debug("death of unknown ability", zap.Stringer("token", token))
		return
	}
	if o.service {
		o.managers.connect.OnAbilityDied(token)
		return
	}
	o.managers.pages.OnAbilityDied(token)
}

// GetTopAbility returns the element of the current user's top page
func (s *Service) GetTopAbility() types.ElementName {
	um, err := s.currentManagers()
	if err != nil {
		return types.ElementName{}
	}
	if top := um.pages.TopAbility(); top != nil {
		return top.Element()
	}
	return types.ElementName{}
}

// KillProcess kills every process of a bundle
func (s *Service) KillProcess(bundleName string) error {
	if bundleName == "" {
		return errcode.ErrInvalidValue
	}
	return s.env.AppScheduler.KillApplication(bundleName)
}

// UninstallApp drops the missions of an uninstalled bundle in every user
func (s *Service) UninstallApp(bundleName string, uid int) {
	for _, um := range s.snapshotManagers() {
		um.pages.UninstallApp(bundleName, uid)
	}
}

// ============================================================================
// Users
// ============================================================================

// StartUser brings userID to the foreground
func (s *Service) StartUser(caller Caller, userID int) error {
	if err := s.checkSystemCaller(caller); err != nil {
		return err
	}
	return s.users.StartUser(userID, true)
}

// StopUser shuts a background user down
func (s *Service) StopUser(caller Caller, userID int) error {
	if err := s.checkSystemCaller(caller); err != nil {
		return err
	}
	return s.users.StopUser(userID)
}

// GetCurrentUserID returns the foreground user
func (s *Service) GetCurrentUserID() int {
	return s.users.GetCurrentUserID()
}
