// Package brookcmder
package brookcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/brookhq/brook/cmd/brook/auth"
	chatcmder "github.com/brookhq/brook/cmd/brook/chat"
	configcmder "github.com/brookhq/brook/cmd/brook/config"
	servecmder "github.com/brookhq/brook/cmd/brook/serve"
	versioncmder "github.com/brookhq/brook/cmd/version"
)

const brookLongDesc string = `Brook relays streaming AI responses to your apps.

Run the relay with:
  brook serve          Run the streaming relay server

Talk to a running relay with:
  brook chat           Interactive streaming chat
  brook auth           Manage session and provider credentials
  brook config         Manage persistent configuration`

const brookShortDesc string = "Brook - Streaming AI Response Relay"

func NewBrookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brook",
		Short: brookShortDesc,
		Long:  brookLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing the .brook config (default: nearest .brook dir)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
