// Package errcode defines the integer result codes returned across the
// ability manager boundary.
//
// Every failure surfaces as a Code. Codes implement error so managers return
// plain errors and callers match them with errors.Is:
//
//	if errors.Is(err, errcode.ConnectionNotExist) { ... }
package errcode

import (
	"errors"
	"fmt"
)

// Code is a result code. The zero value is success.
type Code int

// abilityServiceBase mirrors the subsystem offset used by the framework's
// error space (subsystem 13, module 0).
const abilityServiceBase = 13 << 21

// OK is the success code.
const OK Code = 0

// ErrInvalidValue keeps the errno value the framework uses for bad input.
const ErrInvalidValue Code = 22

const (
	// Input and permission
	CheckPermissionFailed Code = abilityServiceBase + iota + 1
	CallerIsNotSystemApp
	AbilityVisibleFalseDenyRequest
	ResolveAbilityErr
	InvalidUserID

	// State conflicts
	StartServiceAbilityActivating
	InvalidConnectionState
	TargetAbilityNotService
	TargetAbilityNotPage
	ConnectionNotExist
	UserIsStopping
	TerminateLauncherDeny
	WrongInterfaceCall

	// Timeouts
	LoadAbilityTimeout
	ConnectionTimeout
	CommandTimeout

	// Not found
	NoFoundAbilityByCaller
	MissionNotFound

	// Resource exhaustion and internal
	MissionIDExhausted
	AbilityDied
	InnerErr
)

var names = map[Code]string{
	OK:                             "OK",
	ErrInvalidValue:                "ERR_INVALID_VALUE",
	CheckPermissionFailed:          "CHECK_PERMISSION_FAILED",
	CallerIsNotSystemApp:           "CALLER_ISNOT_SYSTEMAPP",
	AbilityVisibleFalseDenyRequest: "ABILITY_VISIBLE_FALSE_DENY_REQUEST",
	ResolveAbilityErr:              "RESOLVE_ABILITY_ERR",
	InvalidUserID:                  "INVALID_USERID_VALUE",
	StartServiceAbilityActivating:  "START_SERVICE_ABILITY_ACTIVING",
	InvalidConnectionState:         "INVALID_CONNECTION_STATE",
	TargetAbilityNotService:        "TARGET_ABILITY_NOT_SERVICE",
	TargetAbilityNotPage:           "TARGET_ABILITY_NOT_PAGE",
	ConnectionNotExist:             "CONNECTION_NOT_EXIST",
	UserIsStopping:                 "USER_IS_STOPPING",
	TerminateLauncherDeny:          "TERMINATE_LAUNCHER_DENY",
	WrongInterfaceCall:             "WRONG_INTERFACE_CALL",
	LoadAbilityTimeout:             "LOAD_ABILITY_TIMEOUT",
	ConnectionTimeout:              "CONNECTION_TIMEOUT",
	CommandTimeout:                 "COMMAND_TIMEOUT",
	NoFoundAbilityByCaller:         "NO_FOUND_ABILITY_BY_CALLER",
	MissionNotFound:                "MISSION_NOT_FOUND",
	MissionIDExhausted:             "MISSION_ID_EXHAUSTED",
	AbilityDied:                    "ABILITY_DIED",
	InnerErr:                       "INNER_ERR",
}

// Name returns the symbolic name of the code.
func (c Code) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error implements error.
func (c Code) Error() string {
	return fmt.Sprintf("%s (%d)", c.Name(), int(c))
}

// FromError maps an error back to its result code. Errors that carry no code
// map to InnerErr.
func FromError(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return InnerErr
}
