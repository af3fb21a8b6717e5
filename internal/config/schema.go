// Package config provides configuration loading and validation for Cica.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [workspace]: Data directory settings
//   - [logging]: Logging level, format, and output
//   - [channels.telegram]: Telegram channel configuration
//   - [backend.claude]: Claude CLI backend configuration
//   - [cron]: Scheduler tick interval
//   - [debounce]: Per-user message debounce window
//   - [metrics]: Prometheus listener
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax, for example: token = "${TELEGRAM_BOT_TOKEN}".
package config

// Config represents the main application configuration.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Logging   LoggingConfig   `toml:"logging"`
	Channels  ChannelsConfig  `toml:"channels"`
	Backend   BackendConfig   `toml:"backend"`
	Cron      CronConfig      `toml:"cron"`
	Debounce  DebounceConfig  `toml:"debounce"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// WorkspaceConfig holds the data directory settings.
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// ChannelsConfig holds per-channel configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig holds the Telegram channel configuration.
type TelegramConfig struct {
	Enabled            bool     `toml:"enabled"`
	Token              string   `toml:"token"`
	AllowedUsers       []string `toml:"allowed_users"`
	SendTimeoutSeconds int      `toml:"send_timeout_seconds"`
}

// BackendConfig holds AI backend configurations.
type BackendConfig struct {
	Claude ClaudeConfig `toml:"claude"`
}

// ClaudeConfig holds the Claude CLI backend configuration.
type ClaudeConfig struct {
	Binary string `toml:"binary"`
	Model  string `toml:"model"`
}

// CronConfig holds the scheduler configuration.
type CronConfig struct {
	Enabled             bool `toml:"enabled"`
	TickIntervalSeconds int  `toml:"tick_interval_seconds"`
}

// DebounceConfig holds the per-user task manager configuration.
type DebounceConfig struct {
	WindowMillis int `toml:"window_ms"`
}

// MetricsConfig holds the Prometheus listener configuration. An empty
// listen address disables the listener.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}
