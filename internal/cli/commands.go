// Package cli implements the interactive console: session status, realm
// and character selection, chat and logout. Incoming chat and selection
// prompts are printed as they arrive.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// Controller is the client the console drives.
type Controller interface {
	Status() connector.Status
	Session() *session.Session
	Selector() *connector.Selector
	Say(ctx context.Context, typ protocol.ChatType, target, text string) error
	Logout() error
	Disconnect() error
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	broadcast *events.Broadcast
	client    Controller

	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewCLI creates a console on stdin and stdout.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, broadcast *events.Broadcast, client Controller) *CLI {
	return &CLI{
		cfg:       cfg,
		eventBus:  eventBus,
		broadcast: broadcast,
		client:    client,
		in:        os.Stdin,
		out:       os.Stdout,
	}
}

// Start runs the console until ctx is cancelled or input ends.
func (c *CLI) Start(ctx context.Context) {
	c.printf("\nrealmwalker %s ready. Type 'help' for available commands.\n", config.Version)
	c.printf("─────────────────────────────────────────────────────\n")

	if c.broadcast != nil {
		feed, unsubscribe := c.broadcast.Subscribe("cli")
		defer unsubscribe()
		go c.watch(ctx, feed)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			if err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:]); err != nil {
				c.printf("Error: %v\n", err)
			}
		}
	}
}

// watch prints events the user should see without asking.
func (c *CLI) watch(ctx context.Context, feed <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			c.printEvent(ev)
		}
	}
}

func (c *CLI) printEvent(ev events.Event) {
	switch p := ev.Payload.(type) {
	case events.ChatPayload:
		switch p.Type {
		case "whisper":
			c.printf("[%s] %s whispers: %s\n", p.ReceivedAt.Format("15:04"), p.Sender, p.Text)
		case "channel":
			c.printf("[%s] [%s] %s: %s\n", p.ReceivedAt.Format("15:04"), p.Channel, p.Sender, p.Text)
		default:
			c.printf("[%s] [%s] %s: %s\n", p.ReceivedAt.Format("15:04"), p.Type, p.Sender, p.Text)
		}
	case events.ChoicePayload:
		c.printf("Select a %s:\n", p.Kind)
		for i, opt := range p.Options {
			c.printf("  %d) %s\n", i+1, opt)
		}
		c.printf("Answer with '%s <name|number>'.\n", choiceCommand(p.Kind))
	case events.MessagePayload:
		if p.Detail != nil {
			c.printf("* %s: %s\n", p.Label, *p.Detail)
		} else {
			c.printf("* %s\n", p.Label)
		}
	case events.EnteredWorldPayload:
		c.printf("* %s entered the world\n", p.Character)
	case events.DisconnectedPayload:
		c.printf("* disconnected: %s\n", p.Reason)
	}
}

func choiceCommand(kind string) string {
	if kind == "character" {
		return "char"
	}
	return "realm"
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "realms":
		c.printRealms()
	case "chars", "characters":
		c.printCharacters()
	case "realm":
		return c.cmdSelect(args, c.client.Selector().SelectRealm, "realm")
	case "char", "character":
		return c.cmdSelect(args, c.client.Selector().SelectCharacter, "char")
	case "say":
		return c.cmdSay(ctx, protocol.ChatSay, "", args)
	case "yell":
		return c.cmdSay(ctx, protocol.ChatYell, "", args)
	case "guild", "g":
		return c.cmdSay(ctx, protocol.ChatGuild, "", args)
	case "party", "p":
		return c.cmdSay(ctx, protocol.ChatParty, "", args)
	case "whisper", "w":
		if len(args) < 2 {
			return fmt.Errorf("usage: whisper <name> <message>")
		}
		return c.cmdSay(ctx, protocol.ChatWhisper, args[0], args[1:])
	case "channel", "c":
		if len(args) < 2 {
			return fmt.Errorf("usage: channel <name> <message>")
		}
		return c.cmdSay(ctx, protocol.ChatChannel, args[0], args[1:])
	case "logout":
		if err := c.client.Logout(); err != nil {
			return err
		}
		c.printf("Logout requested\n")
	case "reconnect":
		if err := c.client.Disconnect(); err != nil {
			return err
		}
		c.printf("Reconnection initiated\n")
	case "loglevel":
		return c.cmdLogLevel(ctx, args)
	case "quit", "exit", "q":
		c.printf("Shutting down realmwalker...\n")
		c.eventBus.Emit(ctx, events.New(events.EventShutdown, "cli", nil))
	default:
		c.printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	c.printf("\n╔══════════════════════════════════════════════════════════════╗\n")
	c.printf("║                   realmwalker CLI Commands                   ║\n")
	c.printf("╠══════════════════════════════════════════════════════════════╣\n")
	c.printf("║  status             Show session status                      ║\n")
	c.printf("║  realms             List realms of the last realm list       ║\n")
	c.printf("║  chars              List characters on the selected realm    ║\n")
	c.printf("║  realm <name|n>     Answer a pending realm selection         ║\n")
	c.printf("║  char <name|n>      Answer a pending character selection     ║\n")
	c.printf("║  say <msg>          Say (also: yell, guild, party)           ║\n")
	c.printf("║  whisper <who> msg  Whisper a player                         ║\n")
	c.printf("║  channel <ch> msg   Send to a joined channel                 ║\n")
	c.printf("║  logout             Log the character out                    ║\n")
	c.printf("║  reconnect          Drop the connection and reconnect        ║\n")
	c.printf("║  loglevel <level>   Change the log level                     ║\n")
	c.printf("║  quit               Shutdown realmwalker                     ║\n")
	c.printf("║  help               Show this help message                   ║\n")
	c.printf("╚══════════════════════════════════════════════════════════════╝\n\n")
}

// printStatus displays the session snapshot.
func (c *CLI) printStatus() {
	st := c.client.Status()
	snap := st.Session

	c.printf("\n  Run:          %s\n", orDash(st.RunID))
	c.printf("  Running:      %v\n", st.Running)
	c.printf("  State:        %s\n", snap.State)
	c.printf("  Since:        %s\n", snap.StateChangedAt.Format(time.RFC3339))
	c.printf("  Realm:        %s\n", orDash(snap.Realm))
	c.printf("  Character:    %s\n", orDash(snap.Character))
	c.printf("  Encrypted:    %v\n", snap.Encrypted)
	c.printf("  Latency:      %s\n", snap.Latency)
	c.printf("  State flags:  %s\n", orDash(snap.StateFlags))
	c.printf("  Client flags: %s\n\n", orDash(snap.ClientFlags))
}

// printRealms displays the realm list in a table.
func (c *CLI) printRealms() {
	realms := c.client.Session().Realms()
	if len(realms) == 0 {
		c.printf("No realm list received yet\n")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"#", "Name", "Address", "Population", "Chars", "Locked"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for i, r := range realms {
		tw.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.Name,
			r.Address,
			fmt.Sprintf("%.2f", r.Population),
			fmt.Sprintf("%d", r.Characters),
			fmt.Sprintf("%v", r.Locked),
		})
	}
	tw.Render()
}

// printCharacters displays the character list in a table.
func (c *CLI) printCharacters() {
	chars := c.client.Session().Characters()
	if len(chars) == 0 {
		c.printf("No character list received yet\n")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"#", "Name", "Level", "Race", "Class", "Zone"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	for i, ch := range chars {
		tw.Append([]string{
			fmt.Sprintf("%d", i+1),
			ch.Name,
			fmt.Sprintf("%d", ch.Level),
			fmt.Sprintf("%d", ch.Race),
			fmt.Sprintf("%d", ch.Class),
			fmt.Sprintf("%d", ch.Zone),
		})
	}
	tw.Render()
}

func (c *CLI) cmdSelect(args []string, answer func(string) error, usage string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <name|number>", usage)
	}
	name := strings.Join(args, " ")
	if err := answer(name); err != nil {
		return err
	}
	c.printf("Selected %s\n", name)
	return nil
}

func (c *CLI) cmdSay(ctx context.Context, typ protocol.ChatType, target string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s <message>", typ)
	}
	return c.client.Say(ctx, typ, target, strings.Join(args, " "))
}

func (c *CLI) cmdLogLevel(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: loglevel <trace|debug|info|warn|error>")
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(args[0]))
	if err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("invalid log level: %s", args[0])
	}

	zerolog.SetGlobalLevel(lvl)
	c.cfg.SetLogLevel(lvl.String())
	if err := c.cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist log level")
	}
	c.eventBus.Emit(ctx, events.New(events.EventConfigChanged, "cli", map[string]string{
		"logging.level": lvl.String(),
	}))
	c.printf("Log level set to %s\n", lvl)
	return nil
}

func (c *CLI) printf(format string, a ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
