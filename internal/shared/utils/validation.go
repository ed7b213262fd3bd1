package utils

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

// Length limits
const (
	MaxNameLength     = 127
	MaxDeviceIDLength = 64
	MaxActionLength   = 256
	MaxEntities       = 16
	MaxDumpArgs       = 16
	MaxDumpArgLength  = 256
)

// Want parameter limits
const (
	MaxParams     = 256
	MaxParamDepth = 8
	MaxParamsSize = 64 * 1024
)

// NamePattern matches bundle, ability and module names
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateName checks one component name
func ValidateName(value, fieldName string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
	if len(value) > MaxNameLength {
		return fmt.Errorf("%s must be at most %d characters", fieldName, MaxNameLength)
	}
	if !NamePattern.MatchString(value) {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateElement checks the parts of an element name. Bundle and ability
// are required.
func ValidateElement(e types.ElementName) error {
	if err := ValidateName(e.BundleName, "bundle_name", true); err != nil {
		return err
	}
	if err := ValidateName(e.AbilityName, "ability_name", true); err != nil {
		return err
	}
	if err := ValidateName(e.ModuleName, "module_name", false); err != nil {
		return err
	}
	if len(e.DeviceID) > MaxDeviceIDLength || !utf8.ValidString(e.DeviceID) {
		return fmt.Errorf("device_id is invalid")
	}
	return nil
}

// ValidateParams bounds the count, nesting and encoded size of want
// parameters
func ValidateParams(p types.Params) error {
	if len(p) > MaxParams {
		return fmt.Errorf("%d params exceed maximum %d", len(p), MaxParams)
	}
	if err := checkDepth(map[string]interface{}(p), 0, MaxParamDepth); err != nil {
		return err
	}
	data, err := sonic.Marshal(p)
	if err != nil {
		return fmt.Errorf("params are not encodable: %w", err)
	}
	if len(data) > MaxParamsSize {
		return fmt.Errorf("params size %d bytes exceeds maximum %d bytes", len(data), MaxParamsSize)
	}
	return nil
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("param nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}
	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case types.Params:
		return checkDepth(map[string]interface{}(v), currentDepth, maxDepth)
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateWant checks a want received from outside the process
func ValidateWant(w *types.Want) error {
	if w == nil {
		return fmt.Errorf("want is required")
	}
	if err := ValidateElement(w.Element); err != nil {
		return err
	}
	if len(w.Action) > MaxActionLength {
		return fmt.Errorf("action must be at most %d characters", MaxActionLength)
	}
	if len(w.Entities) > MaxEntities {
		return fmt.Errorf("%d entities exceed maximum %d", len(w.Entities), MaxEntities)
	}
	return ValidateParams(w.Params)
}

// ValidateArgs bounds a dump argument list
func ValidateArgs(args []string) error {
	if len(args) > MaxDumpArgs {
		return fmt.Errorf("%d arguments exceed maximum %d", len(args), MaxDumpArgs)
	}
	for _, a := range args {
		if len(a) > MaxDumpArgLength || !utf8.ValidString(a) {
			return fmt.Errorf("argument %.16q is invalid", a)
		}
	}
	return nil
}
