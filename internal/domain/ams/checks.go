package ams

import (
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/user"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// BaseUserRange is the uid span of one OS user: uid / BaseUserRange is the
// user the uid belongs to
const BaseUserRange = 200000

// FirstApplicationUID is the lowest uid handed to installed applications.
// Callers below it are system services.
const FirstApplicationUID = 10000

// UserIDFromCaller asks the service to derive the user from the caller uid
const UserIDFromCaller = -1

// PermissionManageMissions lets a non-system caller manage missions
const PermissionManageMissions = "ohos.permission.MANAGE_MISSIONS"

// BundleManager resolves wants to component metadata
type BundleManager interface {
	Ready() bool
	QueryAbilityInfo(want *types.Want, userID int) (types.AbilityInfo, bool)
	QueryExtensionAbilityInfos(want *types.Want, userID int) []types.ExtensionAbilityInfo
	GetBundleInfo(name string, userID int) (types.BundleInfo, bool)
	CheckIsSystemAppByUID(uid int) bool
	VerifyPermission(uid int, permission string) bool
}

// Caller identifies the process behind a request
type Caller struct {
	UID   int
	PID   int
	Token ability.Token
}

// SystemCaller is the service acting on its own behalf
var SystemCaller = Caller{}

// StartOptions carry the optional parts of a start request
type StartOptions struct {
	// UserID selects the user; UserIDFromCaller derives it from the caller
	UserID      int
	RequestCode int
	Setting     types.AbilityStartSetting
}

// DefaultStartOptions derives the user and asks for no result
func DefaultStartOptions() StartOptions {
	return StartOptions{UserID: UserIDFromCaller, RequestCode: -1}
}

// UserIDForUID returns the user a uid belongs to
func UserIDForUID(uid int) int {
	return uid / BaseUserRange
}

// VerificationAllToken reports whether token names a record of any user
func (s *Service) VerificationAllToken(token ability.Token) bool {
	_, ok := s.findOwner(token)
	return ok
}

type owner struct {
	managers *userManagers
	service  bool
}

func (s *Service) findOwner(token ability.Token) (owner, bool) {
	if token.IsNil() {
		return owner{}, false
	}
	for _, um := range s.snapshotManagers() {
		if found, service := um.hasToken(token); found {
			return owner{managers: um, service: service}, true
		}
	}
	return owner{}, false
}

// GetValidUserID resolves the user a request runs under. An explicit user
// wins; otherwise the caller's uid decides, with system user callers sent to
// the current user.
func (s *Service) GetValidUserID(requested, callerUID int) int {
	if requested >= 0 {
		return requested
	}
	if uid := UserIDForUID(callerUID); uid != user.SystemUserID {
		return uid
	}
	return s.users.GetCurrentUserID()
}

// JudgeMultiUserConcurrency reports whether userID may run abilities now.
// Only the system user and the current user may.
func (s *Service) JudgeMultiUserConcurrency(userID int) bool {
	return userID == user.SystemUserID || userID == s.users.GetCurrentUserID()
}

func (s *Service) isSystemCaller(uid int) bool {
	return uid < FirstApplicationUID || s.cfg.Bundles.CheckIsSystemAppByUID(uid)
}

// checkCallPermissions rejects callers that may not reach info
func (s *Service) checkCallPermissions(info types.AbilityInfo, caller Caller) error {
	if caller.UID < FirstApplicationUID {
		return nil
	}
	if !info.Visible && caller.UID != info.ApplicationInfo.UID && !s.cfg.Bundles.CheckIsSystemAppByUID(caller.UID) {
		s.log.Warn("target ability is not visible",
			zap.String("element", info.Element().URI()), zap.Int("caller_uid", caller.UID))
		return errcode.AbilityVisibleFalseDenyRequest
	}
	for _, perm := range info.Permissions {
		if !s.cfg.Bundles.VerifyPermission(caller.UID, perm) {
			s.log.Warn("permission denied",
				zap.String("permission", perm), zap.Int("caller_uid", caller.UID))
			return errcode.CheckPermissionFailed
		}
	}
	return nil
}

// checkVisibilityByToken is the connect manager's check on disconnect
func (s *Service) checkVisibilityByToken(target *ability.Record, callerToken ability.Token) error {
	if target.Info().Visible {
		return nil
	}
	caller, ok := s.env.Tokens.Lookup(callerToken)
	if !ok {
		return nil
	}
	uid := caller.App().UID
	if uid == target.App().UID || s.isSystemCaller(uid) {
		return nil
	}
	return errcode.AbilityVisibleFalseDenyRequest
}

func (s *Service) checkManageMissions(caller Caller) error {
	if s.isSystemCaller(caller.UID) || s.cfg.Bundles.VerifyPermission(caller.UID, PermissionManageMissions) {
		return nil
	}
	return errcode.CheckPermissionFailed
}

func (s *Service) checkSystemCaller(caller Caller) error {
	if s.isSystemCaller(caller.UID) {
		return nil
	}
	return errcode.CallerIsNotSystemApp
}

// resolve looks the target of want up, abilities first, then extensions
func (s *Service) resolve(want *types.Want, userID int) (types.AbilityInfo, error) {
	if want == nil || want.Element.BundleName == "" || want.Element.AbilityName == "" {
		return types.AbilityInfo{}, errcode.ErrInvalidValue
	}
	if info, ok := s.cfg.Bundles.QueryAbilityInfo(want, userID); ok {
		return info, nil
	}
	if exts := s.cfg.Bundles.QueryExtensionAbilityInfos(want, userID); len(exts) > 0 {
		return exts[0].AsAbilityInfo(), nil
	}
	s.log.Warn("cannot resolve ability", zap.String("element", want.Element.URI()), zap.Int("user_id", userID))
	return types.AbilityInfo{}, errcode.ResolveAbilityErr
}

// prepare runs the checks every start and connect share and builds the
// request
func (s *Service) prepare(want *types.Want, caller Caller, opts StartOptions) (*ability.Request, error) {
	if !caller.Token.IsNil() && !s.VerificationAllToken(caller.Token) {
		return nil, errcode.ErrInvalidValue
	}
	userID := s.GetValidUserID(opts.UserID, caller.UID)
	info, err := s.resolve(want, userID)
	if err != nil {
		return nil, err
	}
	if info.ApplicationInfo.SingleUser {
		userID = user.SystemUserID
	}
	if !s.JudgeMultiUserConcurrency(userID) {
		s.log.Warn("user is not running in the foreground", zap.Int("user_id", userID))
		return nil, errcode.ErrInvalidValue
	}
	if err := s.checkCallPermissions(info, caller); err != nil {
		return nil, err
	}

	w := want.Clone()
	w.SetParam(types.ParamCallerToken, caller.Token.String())
	w.SetParam(types.ParamCallerUID, caller.UID)
	w.SetParam(types.ParamCallerPID, caller.PID)
	return &ability.Request{
		Want:         w,
		Info:         info,
		App:          info.ApplicationInfo,
		RequestCode:  opts.RequestCode,
		CallerToken:  caller.Token,
		CallerUID:    caller.UID,
		UserID:       userID,
		StartSetting: opts.Setting,
	}, nil
}
