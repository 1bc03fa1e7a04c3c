// Package chatcmder provides the chat command for interactive streaming
// chat against a running brook relay.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brookhq/brook/pkg/cliui"
	"github.com/brookhq/brook/pkg/config"
	"github.com/brookhq/brook/pkg/credentials"
	"github.com/brookhq/brook/pkg/llm"
	"github.com/brookhq/brook/pkg/logger"
	"github.com/brookhq/brook/pkg/streamclient"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("brook> ")
)

type chatCommander struct {
	target    string
	language  string
	nickname  string
	tone      string
	configDir string
	debug     bool

	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session against a running brook relay.

Messages stream back token by token over the relay's authenticated
streaming endpoint. Structured JSON detected in the response is shown
as a separate block when it arrives.

Authentication uses the stored session token (brook auth login) or the
` + credentials.SessionTokenEnvVar + ` environment variable.

Examples:
  brook chat
  brook chat --target http://localhost:3000
  brook chat --language ar --nickname Sara`

const chatShortDesc string = "Interactive streaming chat through a brook relay"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("target") {
				cmder.target = cfg.Client.Target
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.target, "target", "t", defaults.Client.Target, "Brook relay URL")
	cmd.Flags().StringVar(&cmder.language, "language", "", "Response language ('ar' for Arabic)")
	cmd.Flags().StringVar(&cmder.nickname, "nickname", "", "Name the assistant should address you by")
	cmd.Flags().StringVar(&cmder.tone, "tone", "", "Tone the assistant should use")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	client := streamclient.New(c.target, mgr, streamclient.WithLogger(c.logger))
	conversationID := uuid.NewString()

	// Ctrl+C aborts the in-flight stream instead of killing the session.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			client.CancelAllStreams()
		}
	}()

	fmt.Println()
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Relay:"),
		cliui.NameStyle.Render(c.target),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit. Ctrl+C cancels a streaming reply."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if err := c.sendAndStream(client, conversationID, input); err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// sendAndStream streams one turn, printing tokens as they arrive and any
// early JSON payload as its own block.
func (c *chatCommander) sendAndStream(client *streamclient.Client, conversationID, message string) error {
	fmt.Print(assistantPrompt)

	var pt *llm.PersonalTouch
	if c.nickname != "" || c.tone != "" {
		pt = &llm.PersonalTouch{Nickname: c.nickname, Tone: c.tone}
	}

	// OnToken delivers the cumulative text; print only the unseen tail.
	printed := 0

	full, err := client.Stream(context.Background(), streamclient.Request{
		Message:        message,
		Language:       c.language,
		ConversationID: conversationID,
		PersonalTouch:  pt,
	}, streamclient.Callbacks{
		OnToken: func(cumulative string) {
			fmt.Print(cumulative[printed:])
			printed = len(cumulative)
		},
		OnJSON: func(raw json.RawMessage) {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "  ", "  "); err != nil {
				pretty.WriteString(string(raw))
			}
			fmt.Printf("\n\n  %s\n  %s\n\n%s",
				cliui.HeaderStyle.Render("Structured result"),
				cliui.ValueStyle.Render(pretty.String()),
				assistantPrompt,
			)
		},
	})
	if err != nil {
		return err
	}

	// A cancelled stream returns empty text with no error.
	if full == "" {
		fmt.Printf("%s\n", cliui.DimStyle.Render(" (cancelled)"))
	}

	return nil
}
