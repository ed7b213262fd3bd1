package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/pelletier/go-toml/v2"
)

// Manifest is one installed bundle as described on disk
type Manifest struct {
	types.BundleInfo
}

// ReadManifest decodes a manifest, choosing the codec by extension
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data, filepath.Ext(path))
}

// ParseManifest decodes data in the format named by ext (".yaml", ".yml",
// ".toml" or ".json")
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var info types.BundleInfo
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &info)
	case ".toml":
		err = toml.Unmarshal(data, &info)
	case ".json":
		err = sonic.Unmarshal(data, &info)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m := &Manifest{BundleInfo: info}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return m, nil
}

// AppID is the user independent part of the bundle uid
func (m *Manifest) AppID() int {
	return m.UID % ams.BaseUserRange
}

// normalize fills the fields a manifest may leave implicit
func (m *Manifest) normalize() error {
	if m.Name == "" {
		return errors.New("manifest has no bundle name")
	}
	if m.UID == 0 {
		m.UID = m.ApplicationInfo.UID
	}
	if m.UID < ams.FirstApplicationUID && !m.ApplicationInfo.IsSystemApp {
		return fmt.Errorf("bundle %s: uid %d is reserved for system services", m.Name, m.UID)
	}
	if m.ApplicationInfo.Name == "" {
		m.ApplicationInfo.Name = m.Name
	}
	m.ApplicationInfo.BundleName = m.Name
	m.ApplicationInfo.UID = m.UID
	if m.ApplicationInfo.Process == "" {
		m.ApplicationInfo.Process = m.Name
	}

	for i := range m.Abilities {
		a := &m.Abilities[i]
		if a.Name == "" {
			return fmt.Errorf("bundle %s: ability %d has no name", m.Name, i)
		}
		a.BundleName = m.Name
		if a.Type == "" {
			a.Type = types.AbilityTypePage
		}
		if a.LaunchMode == "" {
			a.LaunchMode = types.LaunchModeStandard
		}
		if a.Process == "" {
			a.Process = m.ApplicationInfo.Process
		}
	}
	for i := range m.ExtensionInfos {
		e := &m.ExtensionInfos[i]
		if e.Name == "" {
			return fmt.Errorf("bundle %s: extension %d has no name", m.Name, i)
		}
		e.BundleName = m.Name
		if e.Type == "" {
			e.Type = types.ExtensionTypeService
		}
	}
	return nil
}

// applicationFor returns the application info as seen by userID. Single
// user applications always run as user 0.
func (m *Manifest) applicationFor(userID int) types.ApplicationInfo {
	app := m.ApplicationInfo
	if app.SingleUser || userID < 0 {
		userID = 0
	}
	app.UID = userID*ams.BaseUserRange + m.AppID()
	return app
}
