// Package authcmder provides the auth command for managing brook
// credentials.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/brookhq/brook/pkg/cliui"
	"github.com/brookhq/brook/pkg/credentials"
)

const authLongDesc string = `Manage brook credentials.

Two credentials are stored in session.toml in the .brook/ directory:

  session   The bearer token brook chat presents to the relay's
            authenticated streaming endpoint. Overridden by the
            ` + credentials.SessionTokenEnvVar + ` environment variable.
  key       The upstream provider API key brook serve uses. Overridden
            by the ` + credentials.UpstreamKeyEnvVar + ` environment variable.

Examples:
  brook auth login               Prompt for a session token
  brook auth key                 Prompt for a provider API key
  brook auth status              Show which credentials are stored
  brook auth logout              Remove the stored session token
  echo $TOKEN | brook auth login Pipe the session token from stdin`

const authShortDesc string = "Manage brook credentials"

func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: authShortDesc,
		Long:  authLongDesc,
	}

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the session token used by brook chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runLogin(configDir)
		},
	}
}

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Store the upstream provider API key used by brook serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runKey(configDir)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(configDir)
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runLogout(configDir)
		},
	}
}

func runLogin(configDir string) error {
	token, err := readSecret("session token")
	if err != nil {
		return err
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetSessionToken(token); err != nil {
		return err
	}

	fmt.Printf("\n  %s Stored session token %s\n\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render("(used by brook chat)"),
	)
	return nil
}

func runKey(configDir string) error {
	key, err := readSecret("provider API key")
	if err != nil {
		return err
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetUpstreamKey(key); err != nil {
		return err
	}

	fmt.Printf("\n  %s Stored provider API key %s\n\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render("(used by brook serve; "+credentials.UpstreamKeyEnvVar+" takes precedence)"),
	)
	return nil
}

func runStatus(configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	session, err := mgr.SessionToken()
	if err != nil {
		return err
	}
	key, err := mgr.UpstreamKey()
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	printStatusLine("session token", session != "")
	printStatusLine("provider API key", key != "")
	fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("Stored in "+mgr.GetTarget()))

	return nil
}

func printStatusLine(name string, present bool) {
	if present {
		fmt.Printf("  %s  %s\n", cliui.SuccessMark, cliui.NameStyle.Render(name))
	} else {
		fmt.Printf("  %s  %s  %s\n", cliui.FailMark, cliui.NameStyle.Render(name), cliui.DimStyle.Render("<not set>"))
	}
}

func runLogout(configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.ClearSessionToken(); err != nil {
		return err
	}

	fmt.Printf("\n  %s Removed session token.\n\n", cliui.SuccessMark)
	return nil
}

// readSecret reads a credential from stdin. If stdin is a pipe, it reads
// the first line. Otherwise, it prompts interactively with hidden input.
func readSecret(label string) (string, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("checking stdin: %w", err)
	}

	var raw string

	// Piped input
	if (fi.Mode() & os.ModeCharDevice) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			raw = scanner.Text()
		} else {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading stdin: %w", err)
			}
			return "", errors.New("no input received on stdin")
		}
	} else {
		// Interactive terminal
		fmt.Printf("Enter %s: ", label)

		secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println() // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", label, err)
		}
		raw = string(secretBytes)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%s cannot be empty", label)
	}
	return raw, nil
}
