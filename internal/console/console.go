package console

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"shellrelay/internal/convstate"
	"shellrelay/internal/relay"
)

var commandSuggestions = []prompt.Suggest{
	{Text: ":help", Description: "show this text"},
	{Text: ":mode", Description: "show or set conversation mode (:mode command|chat)"},
	{Text: ":cwd", Description: "show or set working directory (:cwd [path])"},
	{Text: ":cancel", Description: "abort the in-flight plan"},
	{Text: ":quit", Description: "exit the program"},
	{Text: ":exit", Description: "exit the program"},
}

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

type promptExit struct{}

// Console is the local interactive surface. It speaks to the same engine
// the HTTP gateway does, under a fixed conversation id.
type Console struct {
	engine         *relay.Engine
	conversationID string
	render         *glamour.TermRenderer
}

func New(engine *relay.Engine, conversationID string) *Console {
	var renderer *glamour.TermRenderer
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			renderer = r
		}
	}
	if conversationID == "" {
		conversationID = "console"
	}
	return &Console{
		engine:         engine,
		conversationID: conversationID,
		render:         renderer,
	}
}

// Run drives the REPL until the user exits or ctx is canceled.
func (c *Console) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Println("Type a command to run it, ':help' for commands. Double Ctrl+C exits.")

	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if state, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, state) }
		}
	}
	if restore != nil {
		defer restore()
	}

	tracker := &interruptTracker{window: 2 * time.Second}
	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		if exit := c.handleLine(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	p := prompt.New(
		executor,
		commandCompleter,
		prompt.OptionTitle("ShellRelay"),
		prompt.OptionLivePrefix(func() (string, bool) {
			state, err := c.engine.State(ctx, c.conversationID)
			if err != nil {
				return "> ", true
			}
			return fmt.Sprintf("[%s %s] > ", state.Mode, state.WorkingDir), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if c.engine.Cancel(c.conversationID) {
						fmt.Println("\n(Current plan cancelled.)")
						return
					}
					if tracker.secondPress() {
						fmt.Println("\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Println("\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)

	p.Run()
	return nil
}

func commandCompleter(doc prompt.Document) []prompt.Suggest {
	word := doc.GetWordBeforeCursor()
	prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
	if !strings.HasPrefix(prefix, ":") {
		return nil
	}
	return prompt.FilterHasPrefix(commandSuggestions, word, true)
}

// handleLine interprets one input line. Returns true when the REPL should
// exit.
func (c *Console) handleLine(ctx context.Context, line string) bool {
	if strings.HasPrefix(line, ":") {
		return c.handleCommand(ctx, line)
	}

	report, err := c.engine.Handle(ctx, relay.Request{
		ConversationID: c.conversationID,
		Text:           line,
	})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return false
	}
	c.printReport(relay.RenderReport(report))
	return false
}

func (c *Console) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":exit":
		return true
	case ":help":
		for _, s := range commandSuggestions {
			fmt.Printf("  %-8s %s\n", s.Text, s.Description)
		}
	case ":mode":
		if len(fields) < 2 {
			state, err := c.engine.State(ctx, c.conversationID)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				return false
			}
			fmt.Printf("mode: %s\n", state.Mode)
			return false
		}
		if err := c.engine.SetMode(ctx, c.conversationID, convstate.Mode(fields[1])); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("mode set to %s\n", fields[1])
	case ":cwd":
		if len(fields) < 2 {
			state, err := c.engine.State(ctx, c.conversationID)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				return false
			}
			fmt.Printf("cwd: %s\n", state.WorkingDir)
			return false
		}
		rel, err := c.engine.SetCwd(ctx, c.conversationID, fields[1])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("cwd set to %s\n", rel)
	case ":cancel":
		if c.engine.Cancel(c.conversationID) {
			fmt.Println("plan cancelled")
		} else {
			fmt.Println("nothing running")
		}
	default:
		fmt.Printf("unknown command %s, try :help\n", fields[0])
	}
	return false
}

func (c *Console) printReport(rendered string) {
	if rendered == "" {
		return
	}
	if c.render != nil {
		if out, err := c.render.Render("```\n" + rendered + "\n```"); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(rendered)
}
