package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/session"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Account = AccountConfig{Username: "player", Password: "secret"}
	return cfg
}

func fields(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestLoadWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.True(t, cfg.IsFirstRun())

	info, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{"account":{"username":"player","password":"pw"},"connection":{"auth_host":"logon.example.org"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "logon.example.org", cfg.GetConnection().AuthHost)
	// fields missing from the file keep their defaults
	assert.Equal(t, DefaultAuthPort, cfg.GetConnection().AuthPort)
	assert.Equal(t, 30, cfg.GetBehaviour().KeepaliveIntervalSec)

	saved, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)
	assert.Contains(t, string(saved), `"keepalive_interval_sec"`)
}

func TestLoadRejectsBrokenJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Connection.RealmName = "Azeroth"
	cfg.Channels.LFG = "LookingForGroup"

	s := cfg.Settings()
	assert.Equal(t, "player", s.Account)
	assert.Equal(t, "Azeroth", s.RealmName)
	assert.True(t, s.WardenEnabled)
	assert.Equal(t, []string{"General", "Trade", "LookingForGroup"}, s.Channels.List())
	assert.IsType(t, session.Settings{}, s)
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate(validConfig()).Errors)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing account", func(c *Config) { c.Account.Username = " " }, "account.username"},
		{"missing password", func(c *Config) { c.Account.Password = "" }, "account.password"},
		{"bad auth port", func(c *Config) { c.Connection.AuthPort = 70000 }, "connection.auth_port"},
		{"zero auth port", func(c *Config) { c.Connection.AuthPort = 0 }, "connection.auth_port"},
		{"multiplier", func(c *Config) { c.Reconnect.Multiplier = 0.5 }, "reconnect.multiplier"},
		{"delays inverted", func(c *Config) { c.Reconnect.MaxDelayMs = 10 }, "reconnect.max_delay_ms"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker_url"},
		{"plain webhook", func(c *Config) { c.Discord.WebhookURL = "http://x" }, "discord.webhook_url"},
		{"cleanup time", func(c *Config) { c.Journal.CleanupTime = "25:00" }, "journal.cleanup_time"},
		{"keepalive", func(c *Config) { c.Behaviour.KeepaliveIntervalSec = 1 }, "behaviour.keepalive_interval_sec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := Validate(cfg)
			assert.False(t, result.IsValid())
			assert.Contains(t, fields(result.Errors), tt.field)
		})
	}
}

func TestValidateWarnsWhenWardenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Behaviour.WardenEnabled = false
	result := Validate(cfg)
	assert.True(t, result.IsValid())
	assert.Contains(t, fields(result.Warnings), "behaviour.warden_enabled")
}

func TestSetupWizard(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	answers := strings.Join([]string{
		"player",            // account
		"secret",            // password
		"logon.example.org", // auth host
		"",                  // auth port default
		"Azeroth",           // realm
		"",                  // character
		"no",                // mqtt
		"",                  // discord
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runWizard(cfg, strings.NewReader(answers), &out))

	assert.Equal(t, "player", cfg.GetAccount().Username)
	assert.Equal(t, DefaultAuthPort, cfg.GetConnection().AuthPort)
	assert.Equal(t, "Azeroth", cfg.GetConnection().RealmName)
	assert.False(t, cfg.IsFirstRun())
	assert.Contains(t, out.String(), "Configuration saved")
}

func TestSetupWizardGivesUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), DefaultConfigFile)

	// empty account, then decline the retry
	answers := "\n\n\n\n\n\nno\n\nno\n"
	err := runWizard(cfg, strings.NewReader(answers), &bytes.Buffer{})
	assert.Error(t, err)
}
