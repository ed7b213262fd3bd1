package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// ManifestPattern matches the manifest files picked up under the catalog root
const ManifestPattern = "**/*.{yaml,yml,toml,json}"

var _ ams.BundleManager = (*Catalog)(nil)

// Catalog is a read-only bundle manager backed by manifest files, one
// bundle per file. Installed uids are per-application; the uid reported for
// a user is userID*BaseUserRange plus the application uid.
type Catalog struct {
	root string
	log  *logging.Logger

	mu      sync.RWMutex
	loaded  bool
	bundles map[string]*Manifest
	byAppID map[int]*Manifest
}

// NewCatalog creates a catalog reading manifests under root
func NewCatalog(root string, log *logging.Logger) *Catalog {
	return &Catalog{
		root:    root,
		log:     logging.OrNop(log).ForComponent("bundle"),
		bundles: make(map[string]*Manifest),
		byAppID: make(map[int]*Manifest),
	}
}

// Load scans the root for manifests and replaces the catalog. A manifest
// that fails to parse is skipped; the catalog is ready afterwards even if
// it is empty.
func (c *Catalog) Load(ctx context.Context) error {
	fsys := os.DirFS(c.root)
	matches, err := doublestar.Glob(fsys, ManifestPattern)
	if err != nil {
		return fmt.Errorf("scan manifests in %s: %w", c.root, err)
	}
	sort.Strings(matches)

	bundles := make(map[string]*Manifest, len(matches))
	byAppID := make(map[int]*Manifest, len(matches))
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(c.root, rel)
		m, err := ReadManifest(path)
		if err != nil {
			c.log.Error("skip manifest", zap.String("path", path), zap.Error(err))
			continue
		}
		if _, dup := bundles[m.Name]; dup {
			c.log.Warn("duplicate bundle", zap.String("bundle", m.Name), zap.String("path", path))
			continue
		}
		bundles[m.Name] = m
		byAppID[m.AppID()] = m
	}

	c.mu.Lock()
	c.bundles = bundles
	c.byAppID = byAppID
	c.loaded = true
	c.mu.Unlock()
	c.log.Info("bundle catalog loaded", zap.Int("bundles", len(bundles)))
	return nil
}

// Install adds or replaces a bundle without touching disk
func (c *Catalog) Install(m *Manifest) error {
	if err := m.normalize(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.bundles[m.Name]; ok {
		delete(c.byAppID, old.AppID())
	}
	c.bundles[m.Name] = m
	c.byAppID[m.AppID()] = m
	c.loaded = true
	return nil
}

// Uninstall removes a bundle from the catalog
func (c *Catalog) Uninstall(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.bundles[name]
	if !ok {
		return false
	}
	delete(c.bundles, name)
	delete(c.byAppID, m.AppID())
	return true
}

// Bundles returns the installed bundle names, sorted
func (c *Catalog) Bundles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.bundles))
	for n := range c.bundles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Ready reports whether the catalog has been loaded
func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Catalog) lookup(bundle string) (*Manifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.bundles[bundle]
	return m, ok
}

// QueryAbilityInfo resolves a want to an ability of an installed bundle
func (c *Catalog) QueryAbilityInfo(want *types.Want, userID int) (types.AbilityInfo, bool) {
	if want == nil {
		return types.AbilityInfo{}, false
	}
	m, ok := c.lookup(want.Element.BundleName)
	if !ok {
		return types.AbilityInfo{}, false
	}
	for _, info := range m.Abilities {
		if info.Name == want.Element.AbilityName && moduleMatches(info.ModuleName, want.Element.ModuleName) {
			info.DeviceID = want.Element.DeviceID
			info.ApplicationInfo = m.applicationFor(userID)
			return info, true
		}
	}
	return types.AbilityInfo{}, false
}

// QueryExtensionAbilityInfos resolves a want to the matching extensions
func (c *Catalog) QueryExtensionAbilityInfos(want *types.Want, userID int) []types.ExtensionAbilityInfo {
	if want == nil {
		return nil
	}
	m, ok := c.lookup(want.Element.BundleName)
	if !ok {
		return nil
	}
	var out []types.ExtensionAbilityInfo
	for _, info := range m.ExtensionInfos {
		if info.Name == want.Element.AbilityName && moduleMatches(info.ModuleName, want.Element.ModuleName) {
			info.ApplicationInfo = m.applicationFor(userID)
			out = append(out, info)
		}
	}
	return out
}

// GetBundleInfo returns a bundle as installed for userID
func (c *Catalog) GetBundleInfo(name string, userID int) (types.BundleInfo, bool) {
	m, ok := c.lookup(name)
	if !ok {
		return types.BundleInfo{}, false
	}
	app := m.applicationFor(userID)
	out := m.BundleInfo
	out.UID = app.UID
	out.ApplicationInfo = app
	out.Abilities = make([]types.AbilityInfo, len(m.Abilities))
	for i, info := range m.Abilities {
		info.ApplicationInfo = app
		out.Abilities[i] = info
	}
	out.ExtensionInfos = make([]types.ExtensionAbilityInfo, len(m.ExtensionInfos))
	for i, info := range m.ExtensionInfos {
		info.ApplicationInfo = app
		out.ExtensionInfos[i] = info
	}
	out.RequestPermission = append([]string(nil), m.RequestPermission...)
	return out, true
}

func (c *Catalog) byUID(uid int) (*Manifest, bool) {
	if uid < 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byAppID[uid%ams.BaseUserRange]
	return m, ok
}

// CheckIsSystemAppByUID reports whether uid runs a bundle marked as a
// system app
func (c *Catalog) CheckIsSystemAppByUID(uid int) bool {
	m, ok := c.byUID(uid)
	return ok && m.ApplicationInfo.IsSystemApp
}

// VerifyPermission reports whether the bundle running as uid requested
// permission. Requested permissions are granted at install.
func (c *Catalog) VerifyPermission(uid int, permission string) bool {
	m, ok := c.byUID(uid)
	if !ok {
		return false
	}
	for _, p := range m.RequestPermission {
		if p == permission {
			return true
		}
	}
	return false
}

func moduleMatches(have, want string) bool {
	return want == "" || strings.EqualFold(have, want)
}
