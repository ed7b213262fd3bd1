package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all service configuration.
type Config struct {
	Server        ServerConfig
	Logging       LogConfig
	RateLimit     RateLimitConfig
	AMS           AMSConfig
	Timeouts      TimeoutConfig
	Collaborators CollaboratorConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// AMSConfig holds ability manager configuration.
type AMSConfig struct {
	DataDir          string        `envconfig:"AMS_DATA_DIR" default:"/data/service/el1/public/AbilityManagerService"`
	UseNewMission    bool          `envconfig:"AMS_USE_NEW_MISSION" default:"true"`
	StartupConfig    string        `envconfig:"AMS_STARTUP_CONFIG"`
	MinMissionID     int           `envconfig:"AMS_MIN_MISSION_ID" default:"1"`
	MaxMissionID     int           `envconfig:"AMS_MAX_MISSION_ID" default:"2147483647"`
	BootWaitRetries  int           `envconfig:"AMS_BOOT_WAIT_RETRIES" default:"50"`
	BootWaitInterval time.Duration `envconfig:"AMS_BOOT_WAIT_INTERVAL" default:"200ms"`
	RestartMax       int           `envconfig:"AMS_RESTART_MAX" default:"3"`
	DefaultUserID    int           `envconfig:"AMS_DEFAULT_USER_ID" default:"100"`
	HomeElement      string        `envconfig:"AMS_HOME_ELEMENT" default:"/com.ohos.launcher/com.ohos.launcher.MainAbility"`
}

// TimeoutConfig holds lifecycle handshake timeouts.
type TimeoutConfig struct {
	Load          time.Duration `envconfig:"AMS_LOAD_TIMEOUT" default:"3s"`
	Active        time.Duration `envconfig:"AMS_ACTIVE_TIMEOUT" default:"5s"`
	Inactive      time.Duration `envconfig:"AMS_INACTIVE_TIMEOUT" default:"500ms"`
	Background    time.Duration `envconfig:"AMS_BACKGROUND_TIMEOUT" default:"3s"`
	Terminate     time.Duration `envconfig:"AMS_TERMINATE_TIMEOUT" default:"10s"`
	Connect       time.Duration `envconfig:"AMS_CONNECT_TIMEOUT" default:"3s"`
	Disconnect    time.Duration `envconfig:"AMS_DISCONNECT_TIMEOUT" default:"500ms"`
	Command       time.Duration `envconfig:"AMS_COMMAND_TIMEOUT" default:"5s"`
	ForegroundNew time.Duration `envconfig:"AMS_FOREGROUND_NEW_TIMEOUT" default:"5s"`
	BackgroundNew time.Duration `envconfig:"AMS_BACKGROUND_NEW_TIMEOUT" default:"3s"`
	UserSwitch    time.Duration `envconfig:"AMS_USER_SWITCH_TIMEOUT" default:"3s"`
}

// CollaboratorConfig locates the external services the manager talks to.
type CollaboratorConfig struct {
	AppSpawnAddr      string        `envconfig:"APPSPAWN_ADDR" default:"http://localhost:8810"`
	BundleManifestDir string        `envconfig:"BUNDLE_MANIFEST_DIR" default:"/system/etc/bundles"`
	OSAccounts        []int         `envconfig:"OS_ACCOUNTS" default:"0,100"`
	IPCTimeout        time.Duration `envconfig:"IPC_TIMEOUT" default:"5s"`
}

// StartupFile is the service_startup_config document read at boot.
type StartupFile struct {
	Service ServiceStartup `yaml:"service_startup_config" toml:"service_startup_config"`
}

// ServiceStartup carries the values that override the environment.
type ServiceStartup struct {
	UseNewMission          *bool `yaml:"use_new_mission" toml:"use_new_mission"`
	MissionSaveTime        int   `yaml:"mission_save_time" toml:"mission_save_time"`
	RootLauncherRestartMax int   `yaml:"root_launcher_restart_max" toml:"root_launcher_restart_max"`
}

// Load loads configuration from environment variables, then applies the
// startup file when AMS_STARTUP_CONFIG names one.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.AMS.StartupConfig != "" {
		file, err := LoadStartupFile(cfg.AMS.StartupConfig)
		if err != nil {
			return nil, err
		}
		cfg.Apply(file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStartupFile parses a YAML or TOML startup file, chosen by extension.
func LoadStartupFile(path string) (*StartupFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read startup config: %w", err)
	}

	var file StartupFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("unsupported startup config format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse startup config %s: %w", path, err)
	}
	return &file, nil
}

// Apply overrides environment values with those set in the startup file.
func (c *Config) Apply(file *StartupFile) {
	if file == nil {
		return
	}
	if file.Service.UseNewMission != nil {
		c.AMS.UseNewMission = *file.Service.UseNewMission
	}
	if file.Service.RootLauncherRestartMax > 0 {
		c.AMS.RestartMax = file.Service.RootLauncherRestartMax
	}
}

// Validate rejects configurations the managers cannot run with.
func (c *Config) Validate() error {
	if c.AMS.MinMissionID < 1 || c.AMS.MaxMissionID < c.AMS.MinMissionID {
		return fmt.Errorf("invalid mission id range [%d, %d]", c.AMS.MinMissionID, c.AMS.MaxMissionID)
	}
	if c.AMS.DefaultUserID < 0 {
		return fmt.Errorf("invalid default user %d", c.AMS.DefaultUserID)
	}
	if c.AMS.BootWaitRetries < 0 {
		return fmt.Errorf("boot wait retries cannot be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		AMS: AMSConfig{
			DataDir:          "/data/service/el1/public/AbilityManagerService",
			UseNewMission:    true,
			MinMissionID:     1,
			MaxMissionID:     2147483647,
			BootWaitRetries:  50,
			BootWaitInterval: 200 * time.Millisecond,
			RestartMax:       3,
			DefaultUserID:    100,
			HomeElement:      "/com.ohos.launcher/com.ohos.launcher.MainAbility",
		},
		Timeouts: DefaultTimeouts(),
		Collaborators: CollaboratorConfig{
			AppSpawnAddr:      "http://localhost:8810",
			BundleManifestDir: "/system/etc/bundles",
			OSAccounts:        []int{0, 100},
			IPCTimeout:        5 * time.Second,
		},
	}
}

// DefaultTimeouts returns the stock handshake timeouts.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Load:          3 * time.Second,
		Active:        5 * time.Second,
		Inactive:      500 * time.Millisecond,
		Background:    3 * time.Second,
		Terminate:     10 * time.Second,
		Connect:       3 * time.Second,
		Disconnect:    500 * time.Millisecond,
		Command:       5 * time.Second,
		ForegroundNew: 5 * time.Second,
		BackgroundNew: 3 * time.Second,
		UserSwitch:    3 * time.Second,
	}
}
