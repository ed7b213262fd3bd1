package types

// AbilityType classifies a component
type AbilityType string

const (
	AbilityTypeUnknown   AbilityType = "UNKNOWN"
	AbilityTypePage      AbilityType = "PAGE"
	AbilityTypeService   AbilityType = "SERVICE"
	AbilityTypeData      AbilityType = "DATA"
	AbilityTypeExtension AbilityType = "EXTENSION"
)

// IsConnectable reports whether components of this type are managed by the
// connect manager
func (t AbilityType) IsConnectable() bool {
	return t == AbilityTypeService || t == AbilityTypeExtension
}

// LaunchMode decides mission reuse for page components
type LaunchMode string

const (
	LaunchModeSingleton LaunchMode = "SINGLETON"
	LaunchModeStandard  LaunchMode = "STANDARD"
	LaunchModeSingleTop LaunchMode = "SINGLETOP"
)

// ExtensionType classifies extension components
type ExtensionType string

const (
	ExtensionTypeService       ExtensionType = "SERVICE"
	ExtensionTypeForm          ExtensionType = "FORM"
	ExtensionTypeDataShare     ExtensionType = "DATASHARE"
	ExtensionTypeStaticSub     ExtensionType = "STATICSUBSCRIBER"
	ExtensionTypeWallpaper     ExtensionType = "WALLPAPER"
	ExtensionTypeUnspecified   ExtensionType = "UNSPECIFIED"
	ExtensionTypeWorkScheduler ExtensionType = "WORK_SCHEDULER"
)

// ApplicationInfo describes the application owning a component
type ApplicationInfo struct {
	Name          string `json:"name" yaml:"name" toml:"name"`
	BundleName    string `json:"bundle_name" yaml:"bundle_name" toml:"bundle_name"`
	UID           int    `json:"uid" yaml:"uid" toml:"uid"`
	Process       string `json:"process,omitempty" yaml:"process" toml:"process"`
	SingleUser    bool   `json:"single_user,omitempty" yaml:"single_user" toml:"single_user"`
	IsSystemApp   bool   `json:"is_system_app,omitempty" yaml:"is_system_app" toml:"is_system_app"`
	IsLauncherApp bool   `json:"is_launcher_app,omitempty" yaml:"is_launcher_app" toml:"is_launcher_app"`
}

// AbilityInfo is bundle-manager supplied component metadata. The manager
// never mutates it.
type AbilityInfo struct {
	Name              string          `json:"name" yaml:"name" toml:"name"`
	BundleName        string          `json:"bundle_name" yaml:"bundle_name" toml:"bundle_name"`
	ModuleName        string          `json:"module_name,omitempty" yaml:"module_name" toml:"module_name"`
	DeviceID          string          `json:"device_id,omitempty" yaml:"device_id" toml:"device_id"`
	Type              AbilityType     `json:"type" yaml:"type" toml:"type"`
	ExtensionType     ExtensionType   `json:"extension_type,omitempty" yaml:"extension_type" toml:"extension_type"`
	LaunchMode        LaunchMode      `json:"launch_mode,omitempty" yaml:"launch_mode" toml:"launch_mode"`
	Permissions       []string        `json:"permissions,omitempty" yaml:"permissions" toml:"permissions"`
	Process           string          `json:"process,omitempty" yaml:"process" toml:"process"`
	Visible           bool            `json:"visible" yaml:"visible" toml:"visible"`
	IsStageBasedModel bool            `json:"is_stage_based_model,omitempty" yaml:"is_stage_based_model" toml:"is_stage_based_model"`
	IsLauncherAbility bool            `json:"is_launcher_ability,omitempty" yaml:"is_launcher_ability" toml:"is_launcher_ability"`
	Continuable       bool            `json:"continuable,omitempty" yaml:"continuable" toml:"continuable"`
	Label             string          `json:"label,omitempty" yaml:"label" toml:"label"`
	IconPath          string          `json:"icon_path,omitempty" yaml:"icon_path" toml:"icon_path"`
	ApplicationInfo   ApplicationInfo `json:"application_info" yaml:"application_info" toml:"application_info"`
}

// Element returns the element name of the component
func (a *AbilityInfo) Element() ElementName {
	return ElementName{
		DeviceID:    a.DeviceID,
		BundleName:  a.BundleName,
		AbilityName: a.Name,
		ModuleName:  a.ModuleName,
	}
}

// ExtensionAbilityInfo describes an extension component
type ExtensionAbilityInfo struct {
	Name            string          `json:"name" yaml:"name" toml:"name"`
	BundleName      string          `json:"bundle_name" yaml:"bundle_name" toml:"bundle_name"`
	ModuleName      string          `json:"module_name,omitempty" yaml:"module_name" toml:"module_name"`
	Type            ExtensionType   `json:"type" yaml:"type" toml:"type"`
	Permissions     []string        `json:"permissions,omitempty" yaml:"permissions" toml:"permissions"`
	Process         string          `json:"process,omitempty" yaml:"process" toml:"process"`
	Visible         bool            `json:"visible" yaml:"visible" toml:"visible"`
	ApplicationInfo ApplicationInfo `json:"application_info" yaml:"application_info" toml:"application_info"`
}

// AsAbilityInfo converts the extension metadata into the form the managers
// operate on
func (e *ExtensionAbilityInfo) AsAbilityInfo() AbilityInfo {
	process := e.Process
	if process == "" {
		process = e.ApplicationInfo.Process
	}
	return AbilityInfo{
		Name:              e.Name,
		BundleName:        e.BundleName,
		ModuleName:        e.ModuleName,
		Type:              AbilityTypeExtension,
		ExtensionType:     e.Type,
		LaunchMode:        LaunchModeSingleton,
		Permissions:       e.Permissions,
		Process:           process,
		Visible:           e.Visible,
		IsStageBasedModel: true,
		ApplicationInfo:   e.ApplicationInfo,
	}
}

// BundleInfo describes an installed bundle
type BundleInfo struct {
	Name              string                 `json:"name" yaml:"name" toml:"name"`
	UID               int                    `json:"uid" yaml:"uid" toml:"uid"`
	ApplicationInfo   ApplicationInfo        `json:"application_info" yaml:"application_info" toml:"application_info"`
	Abilities         []AbilityInfo          `json:"abilities" yaml:"abilities" toml:"abilities"`
	ExtensionInfos    []ExtensionAbilityInfo `json:"extensions,omitempty" yaml:"extensions" toml:"extensions"`
	RequestPermission []string               `json:"request_permissions,omitempty" yaml:"request_permissions" toml:"request_permissions"`
}

// RunningProcessInfo is reported by the app scheduler for a hosted process
type RunningProcessInfo struct {
	ProcessName string `json:"process_name"`
	PID         int    `json:"pid"`
	UID         int    `json:"uid"`
	State       string `json:"state"`
}

// AbilityStartSetting carries window placement hints. Only the property bag
// contract is used by the manager.
type AbilityStartSetting map[string]string

// Start setting keys
const (
	StartSettingWindowMode = "ohos.aafwk.ability.windowMode"
	StartSettingDisplayID  = "ohos.aafwk.ability.displayId"
)
