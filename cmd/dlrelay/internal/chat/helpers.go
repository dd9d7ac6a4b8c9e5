package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/tinyland-inc/dlrelay/cmd/dlrelay/internal"
	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/config"
	"github.com/tinyland-inc/dlrelay/pkg/directline"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
	"github.com/tinyland-inc/dlrelay/pkg/relay"
	"github.com/tinyland-inc/dlrelay/pkg/session"
)

const defaultSender = "cli:default"

func chatCmd(ctx context.Context, message, sender string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if sender == "" {
		sender = defaultSender
	}

	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	} else {
		logger.SetLevel(logger.WARN)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.ValidateBackend(); err != nil {
		return fmt.Errorf("invalid config (%s): %w", internal.GetConfigPath(), err)
	}

	r, err := newRelay(cfg, os.Stdout)
	if err != nil {
		return err
	}

	if message != "" {
		return send(ctx, r, sender, message)
	}

	fmt.Printf("%s Interactive mode as %s (Ctrl+C to exit)\n\n", internal.Logo, sender)
	interactiveMode(ctx, r, sender)

	return nil
}

func newRelay(cfg *config.Config, out io.Writer) (*relay.Relay, error) {
	client, err := directline.NewClient(directline.Config{
		Token:   cfg.DirectLine.Token,
		BaseURL: cfg.DirectLine.BaseURL,
		Timeout: cfg.DirectLine.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Direct Line client: %w", err)
	}
	return relay.New(session.NewMemoryStore(), client, newConsoleChannel(out)), nil
}

// send relays one line; the reply is printed by the console channel.
func send(ctx context.Context, r *relay.Relay, sender, text string) error {
	out := r.Handle(ctx, bus.InboundMessage{
		Channel:   "cli",
		SenderID:  sender,
		Content:   text,
		MessageID: uuid.New().String(),
	})
	if out.Failed() {
		return fmt.Errorf("error relaying message: %w", out.Err)
	}
	if out.DispatchErr != nil {
		return fmt.Errorf("error printing reply: %w", out.DispatchErr)
	}
	return nil
}

func interactiveMode(ctx context.Context, r *relay.Relay, sender string) {
	prompt := fmt.Sprintf("%s You: ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".dlrelay_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, r, sender, os.Stdin, os.Stdout)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		if !handleLine(ctx, r, sender, line, os.Stdout) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, r *relay.Relay, sender string, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s You: ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if strings.TrimSpace(line) != "" {
					handleLine(ctx, r, sender, line, out)
				}
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		if !handleLine(ctx, r, sender, line, out) {
			return
		}
	}
}

// handleLine relays one input line and reports whether the loop continues.
func handleLine(ctx context.Context, r *relay.Relay, sender, line string, out io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	if input == "exit" || input == "quit" {
		fmt.Fprintln(out, "Goodbye!")
		return false
	}

	if err := send(ctx, r, sender, input); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return true
}
