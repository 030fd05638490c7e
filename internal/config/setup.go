package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration on the
// terminal.
func RunSetupWizard(cfg *Config) error {
	return runWizard(cfg, os.Stdin, os.Stdout)
}

func runWizard(cfg *Config, in io.Reader, out io.Writer) error {
	p := &prompter{r: bufio.NewReader(in), w: out}

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║        realmwalker - First Run Setup         ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	for {
		cfg.mu.Lock()
		fmt.Fprintln(out, "── Account ──")
		cfg.Account.Username = p.String("Account name", cfg.Account.Username)
		cfg.Account.Password = p.Password("Password")

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── Auth Server ──")
		cfg.Connection.AuthHost = p.String("Auth server host", cfg.Connection.AuthHost)
		cfg.Connection.AuthPort = p.Int("Auth server port", cfg.Connection.AuthPort)
		cfg.Connection.RealmName = p.String("Realm name (blank to choose at login)", cfg.Connection.RealmName)
		cfg.Connection.CharacterName = p.String("Character name (blank to choose at login)", cfg.Connection.CharacterName)

		fmt.Fprintln(out)
		fmt.Fprintln(out, "── Integrations ──")
		cfg.MQTT.Enabled = p.Bool("Enable MQTT telemetry", cfg.MQTT.Enabled)
		if cfg.MQTT.Enabled {
			cfg.MQTT.BrokerURL = p.String("MQTT broker host", cfg.MQTT.BrokerURL)
		}
		cfg.Discord.WebhookURL = p.String("Discord webhook URL (optional)", cfg.Discord.WebhookURL)
		cfg.mu.Unlock()

		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			break
		}

		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if !p.Bool("Would you like to try again?", true) {
			return fmt.Errorf("configuration validation failed")
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved to", cfg.Path())
	fmt.Fprintln(out)
	return nil
}

type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func (p *prompter) line() string {
	input, _ := p.r.ReadString('\n')
	return strings.TrimSpace(input)
}

func (p *prompter) String(prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.w, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(p.w, "  %s: ", prompt)
	}
	if input := p.line(); input != "" {
		return input
	}
	return defaultVal
}

func (p *prompter) Password(prompt string) string {
	fmt.Fprintf(p.w, "  %s: ", prompt)
	return p.line()
}

func (p *prompter) Int(prompt string, defaultVal int) int {
	fmt.Fprintf(p.w, "  %s [%d]: ", prompt, defaultVal)
	input := p.line()
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(p.w, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (p *prompter) Bool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}
	fmt.Fprintf(p.w, "  %s [%s]: ", prompt, defaultStr)

	switch strings.ToLower(p.line()) {
	case "":
		return defaultVal
	case "yes", "y", "true", "1":
		return true
	default:
		return false
	}
}
