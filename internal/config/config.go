// Package config handles configuration loading, validation, and persistence
// for realmwalker.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/session"
)

// Version is the client release reported by the CLI and API.
const Version = "1.0.0"

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAuthPort   = 3724
	DefaultAPIPort    = 5050
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Account    AccountConfig    `json:"account"`
	Connection ConnectionConfig `json:"connection"`
	Reconnect  ReconnectConfig  `json:"reconnect"`
	Channels   ChannelConfig    `json:"channels"`
	Behaviour  BehaviourConfig  `json:"behaviour"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Health     HealthConfig     `json:"health"`
	MQTT       MQTTConfig       `json:"mqtt"`
	API        APIConfig        `json:"api"`
	Security   SecurityConfig   `json:"security"`
	Discord    DiscordConfig    `json:"discord"`
	Journal    JournalConfig    `json:"journal"`
	Script     ScriptConfig     `json:"script"`
	Logging    LoggingConfig    `json:"logging"`
}

// AccountConfig holds the game account credentials.
type AccountConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ConnectionConfig selects the auth server, realm and character.
type ConnectionConfig struct {
	AuthHost          string `json:"auth_host"`
	AuthPort          int    `json:"auth_port"`
	RealmName         string `json:"realm_name"`
	CharacterName     string `json:"character_name"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec"`
	ReadTimeoutSec    int    `json:"read_timeout_sec"`
}

// ReconnectConfig tunes the reconnect backoff. MaxAttempts 0 retries forever.
type ReconnectConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms"`
	Multiplier     float64 `json:"multiplier"`
}

// ChannelConfig names the chat channels joined on entering the world.
// An empty label is not joined.
type ChannelConfig struct {
	Trade        string `json:"trade"`
	LFG          string `json:"lfg"`
	LocalDefense string `json:"local_defense"`
	General      string `json:"general"`
}

// BehaviourConfig holds in-world automation settings.
type BehaviourConfig struct {
	KeepaliveIntervalSec int  `json:"keepalive_interval_sec"`
	WardenEnabled        bool `json:"warden_enabled"`
	DebugPackets         bool `json:"debug_packets"`
	ChatRatePerSec       int  `json:"chat_rate_per_sec"`
}

// BroadcastConfig sizes the per-subscriber event queues.
type BroadcastConfig struct {
	Buffer int `json:"buffer"`
}

// HealthConfig tunes the periodic health checks. Intervals of 0 disable
// the check.
type HealthConfig struct {
	CheckIntervalSec     int     `json:"check_interval_sec"`
	HeartbeatIntervalSec int     `json:"heartbeat_interval_sec"`
	StaleAfterSec        int     `json:"stale_after_sec"`
	LatencyWarnMs        int     `json:"latency_warn_ms"`
	DiskWarnPercent      float64 `json:"disk_warn_percent"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// APIConfig holds the control API listener settings.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// SecurityConfig holds API security settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	APIToken       string   `json:"api_token"`
}

// DiscordConfig holds Discord webhook settings.
type DiscordConfig struct {
	WebhookURL         string `json:"webhook_url"`
	NotifyOnWhisper    bool   `json:"notify_on_whisper"`
	NotifyOnDisconnect bool   `json:"notify_on_disconnect"`
}

// JournalConfig holds the SQLite journal settings.
type JournalConfig struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// ScriptConfig enables the Lua chat hook.
type ScriptConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			AuthHost:          "127.0.0.1",
			AuthPort:          DefaultAuthPort,
			ConnectTimeoutSec: 10,
			ReadTimeoutSec:    120,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:    10,
			InitialDelayMs: 1000,
			MaxDelayMs:     60000,
			Multiplier:     2,
		},
		Channels: ChannelConfig{
			General: "General",
			Trade:   "Trade",
		},
		Behaviour: BehaviourConfig{
			KeepaliveIntervalSec: 30,
			WardenEnabled:        true,
			ChatRatePerSec:       1,
		},
		Broadcast: BroadcastConfig{Buffer: 64},
		Health: HealthConfig{
			CheckIntervalSec:     30,
			HeartbeatIntervalSec: 60,
			StaleAfterSec:        180,
			LatencyWarnMs:        1000,
			DiskWarnPercent:      90,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: "realmwalker",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    DefaultAPIPort,
		},
		Security: SecurityConfig{
			RateLimitRPS: 20,
		},
		Discord: DiscordConfig{
			NotifyOnWhisper:    true,
			NotifyOnDisconnect: true,
		},
		Journal: JournalConfig{
			Path:          "data/journal.db",
			RetentionDays: 30,
			CleanupTime:   "04:00",
		},
		Script: ScriptConfig{
			Path: "scripts/chat.lua",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 7,
		},
	}
}

// Load reads configuration from a JSON file, writing the defaults when
// none exists yet.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds the account password.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetAccount returns a copy of the account section.
func (c *Config) GetAccount() AccountConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Account
}

// SetAccount updates the account section.
func (c *Config) SetAccount(a AccountConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Account = a
}

// GetConnection returns a copy of the connection section.
func (c *Config) GetConnection() ConnectionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Connection
}

// SetConnection updates the connection section.
func (c *Config) SetConnection(conn ConnectionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Connection = conn
}

// GetReconnect returns a copy of the reconnect section.
func (c *Config) GetReconnect() ReconnectConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Reconnect
}

// GetBehaviour returns a copy of the behaviour section.
func (c *Config) GetBehaviour() BehaviourConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Behaviour
}

// GetBroadcast returns a copy of the broadcast section.
func (c *Config) GetBroadcast() BroadcastConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Broadcast
}

// GetHealth returns a copy of the health section.
func (c *Config) GetHealth() HealthConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Health
}

// GetMQTT returns a copy of the MQTT section.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetAPI returns a copy of the API section.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetSecurity returns a copy of the security section.
func (c *Config) GetSecurity() SecurityConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.Security
	s.AllowedOrigins = append([]string(nil), c.Security.AllowedOrigins...)
	s.IPWhitelist = append([]string(nil), c.Security.IPWhitelist...)
	return s
}

// GetDiscord returns a copy of the Discord section.
func (c *Config) GetDiscord() DiscordConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Discord
}

// GetJournal returns a copy of the journal section.
func (c *Config) GetJournal() JournalConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Journal
}

// GetScript returns a copy of the script section.
func (c *Config) GetScript() ScriptConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Script
}

// GetLogging returns a copy of the logging section.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// SetLogLevel overrides the configured log level.
func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logging.Level = level
}

// Settings derives the read-only session settings.
func (c *Config) Settings() session.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return session.Settings{
		Account:       c.Account.Username,
		Password:      c.Account.Password,
		RealmName:     c.Connection.RealmName,
		CharacterName: c.Connection.CharacterName,
		Channels: session.ChannelLabels{
			Trade:        c.Channels.Trade,
			LFG:          c.Channels.LFG,
			LocalDefense: c.Channels.LocalDefense,
			General:      c.Channels.General,
		},
		WardenEnabled: c.Behaviour.WardenEnabled,
		DebugPackets:  c.Behaviour.DebugPackets,
	}
}

// Seconds converts a configured second count to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Account.Username == "" || c.Connection.AuthHost == ""
}
