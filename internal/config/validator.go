package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration. Realm addresses are only known after
// the realm list arrives, so they are checked at selection time instead.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}
	validateAccount(&cfg.Account, result)
	validateConnection(&cfg.Connection, result)
	validateReconnect(&cfg.Reconnect, result)
	validateBehaviour(&cfg.Behaviour, result)
	validateHealth(&cfg.Health, cfg.Behaviour.KeepaliveIntervalSec, result)
	validateIntegrations(cfg, result)
	return result
}

func validateAccount(a *AccountConfig, result *ValidationResult) {
	if strings.TrimSpace(a.Username) == "" {
		result.AddError("account.username", "account name is required")
	}
	if a.Password == "" {
		result.AddError("account.password", "password is required")
	}
	if len(a.Username) > 16 {
		result.AddWarning("account.username", "account names longer than 16 characters are usually rejected")
	}
}

func validateConnection(c *ConnectionConfig, result *ValidationResult) {
	if strings.TrimSpace(c.AuthHost) == "" {
		result.AddError("connection.auth_host", "auth server host is required")
	}
	validatePort(c.AuthPort, "connection.auth_port", result)

	if c.ConnectTimeoutSec < 1 {
		result.AddError("connection.connect_timeout_sec", "connect timeout must be at least 1 second")
	}
	if c.ReadTimeoutSec < 10 {
		result.AddWarning("connection.read_timeout_sec",
			"read timeout below 10s may drop idle but healthy connections")
	}
}

func validateReconnect(r *ReconnectConfig, result *ValidationResult) {
	if r.MaxAttempts < 0 {
		result.AddError("reconnect.max_attempts", "max attempts must be 0 (unlimited) or more")
	}
	if r.InitialDelayMs < 100 {
		result.AddError("reconnect.initial_delay_ms", "initial delay must be at least 100ms")
	}
	if r.MaxDelayMs < r.InitialDelayMs {
		result.AddError("reconnect.max_delay_ms", "max delay must not be below the initial delay")
	}
	if r.MaxDelayMs > int((30 * time.Minute).Milliseconds()) {
		result.AddWarning("reconnect.max_delay_ms", "max delay above 30 minutes")
	}
	if r.Multiplier < 1 || r.Multiplier > 10 {
		result.AddError("reconnect.multiplier", "multiplier must be between 1 and 10")
	}
}

func validateBehaviour(b *BehaviourConfig, result *ValidationResult) {
	if b.KeepaliveIntervalSec < 5 {
		result.AddError("behaviour.keepalive_interval_sec", "keep-alive interval must be at least 5 seconds")
	}
	if b.ChatRatePerSec < 1 {
		result.AddWarning("behaviour.chat_rate_per_sec", "chat rate below 1/s, outgoing chat is limited to 1/s")
	}
	if !b.WardenEnabled {
		result.AddWarning("behaviour.warden_enabled", "most servers disconnect clients that ignore anti-cheat requests")
	}
}

func validateHealth(h *HealthConfig, keepaliveSec int, result *ValidationResult) {
	if h.CheckIntervalSec < 0 || h.HeartbeatIntervalSec < 0 {
		result.AddError("health", "intervals must be 0 (disabled) or more")
	}
	if h.StaleAfterSec > 0 && h.StaleAfterSec <= keepaliveSec {
		result.AddWarning("health.stale_after_sec", "stale threshold should exceed the keep-alive interval")
	}
	if h.DiskWarnPercent < 0 || h.DiskWarnPercent > 100 {
		result.AddError("health.disk_warn_percent", "percentage must be between 0 and 100")
	}
}

func validateIntegrations(cfg *Config, result *ValidationResult) {
	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
			result.AddError("mqtt.port", "invalid MQTT port")
		}
	}

	if cfg.API.Enabled {
		validatePort(cfg.API.Port, "api.port", result)
		if cfg.API.Host != "127.0.0.1" && cfg.API.Host != "localhost" && cfg.Security.APIToken == "" {
			result.AddWarning("security.api_token", "API listens beyond localhost without a token")
		}
	}

	if cfg.Security.TLSEnabled {
		if strings.TrimSpace(cfg.Security.TLSCertFile) == "" {
			result.AddError("security.tls_cert_file", "TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(cfg.Security.TLSKeyFile) == "" {
			result.AddError("security.tls_key_file", "TLS key file is required when TLS is enabled")
		}
	}
	if cfg.Security.RateLimitRPS < 1 {
		result.AddWarning("security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if url := cfg.Discord.WebhookURL; url != "" && !strings.HasPrefix(url, "https://") {
		result.AddError("discord.webhook_url", "webhook URL must use https")
	}

	if cfg.Journal.RetentionDays < 1 {
		result.AddError("journal.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", cfg.Journal.CleanupTime); err != nil {
		result.AddError("journal.cleanup_time", fmt.Sprintf("invalid time %q, expected HH:MM", cfg.Journal.CleanupTime))
	}

	if cfg.Script.Enabled && strings.TrimSpace(cfg.Script.Path) == "" {
		result.AddError("script.path", "script path is required when scripting is enabled")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
	}
}
