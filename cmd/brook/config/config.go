// Package configcmder provides the config command for managing persistent
// brook configuration stored in the .brook/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent brook configuration.

Configuration is stored as config.toml in the .brook/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values, and the BROOK_* environment variables over both.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.allowed_origins, relay.auth_token,
  relay.heartbeat_seconds,
  upstream.url, upstream.model, upstream.max_tokens, upstream.temperature,
  storage.sqlite_path, storage.postgres_url,
  events.kafka_brokers, events.kafka_topic,
  client.target

Use subcommands to get, set, or list configuration values:
  brook config set <key> <value>    Set a configuration value
  brook config get <key>            Get a configuration value
  brook config list                 List all configuration values

Examples:
  brook config set upstream.model gpt-4o
  brook config set relay.allowed_origins https://app.example.com
  brook config get upstream.model
  brook config list`

const configShortDesc string = "Manage persistent brook configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
