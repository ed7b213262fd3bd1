// Package config provides 12-factor configuration for the ability manager.
//
// Configuration is loaded from environment variables with defaults, then the
// optional startup file (YAML or TOML) named by AMS_STARTUP_CONFIG overrides
// the service_startup_config values. The page manager mode (new mission list
// or legacy stack) is decided here once at boot.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - AMS: data dir, mission id range, boot wait, page manager mode
//   - Timeouts: lifecycle handshake timeouts
//   - Collaborators: app spawner address, bundle manifests, OS accounts
//
// Example startup file:
//
//	service_startup_config:
//	  use_new_mission: false
//	  root_launcher_restart_max: 5
package config
