package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.AMS.UseNewMission)
	assert.Equal(t, 1, cfg.AMS.MinMissionID)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.UserSwitch)
	assert.Equal(t, []int{0, 100}, cfg.Collaborators.OSAccounts)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("AMS_USE_NEW_MISSION", "false")
	t.Setenv("AMS_LOAD_TIMEOUT", "250ms")
	t.Setenv("OS_ACCOUNTS", "0,100,101")
	t.Setenv("AMS_DATA_DIR", "/tmp/ams")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.False(t, cfg.AMS.UseNewMission)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts.Load)
	assert.Equal(t, []int{0, 100, 101}, cfg.Collaborators.OSAccounts)
	assert.Equal(t, "/tmp/ams", cfg.AMS.DataDir)
}

func TestLoadInvalidMissionRange(t *testing.T) {
	t.Setenv("AMS_MIN_MISSION_ID", "10")
	t.Setenv("AMS_MAX_MISSION_ID", "5")

	_, err := Load()
	assert.Error(t, err)
}

func TestStartupFileOverridesEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "startup.yaml",
			content: `service_startup_config:
  use_new_mission: false
  root_launcher_restart_max: 7
`,
		},
		{
			name: "toml",
			file: "startup.toml",
			content: `[service_startup_config]
use_new_mission = false
root_launcher_restart_max = 7
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			t.Setenv("AMS_USE_NEW_MISSION", "true")
			t.Setenv("AMS_STARTUP_CONFIG", path)

			cfg, err := Load()
			require.NoError(t, err)
			assert.False(t, cfg.AMS.UseNewMission)
			assert.Equal(t, 7, cfg.AMS.RestartMax)
		})
	}
}

func TestStartupFileKeepsUnsetValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startup.yml")
	require.NoError(t, os.WriteFile(path, []byte("service_startup_config:\n  mission_save_time: 10\n"), 0o644))

	file, err := LoadStartupFile(path)
	require.NoError(t, err)

	cfg := Default()
	cfg.Apply(file)
	assert.True(t, cfg.AMS.UseNewMission)
	assert.Equal(t, 3, cfg.AMS.RestartMax)
}

func TestStartupFileErrors(t *testing.T) {
	_, err := LoadStartupFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "startup.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))
	_, err = LoadStartupFile(path)
	assert.Error(t, err)
}
