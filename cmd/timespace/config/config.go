// Package configcmder provides the config command for managing persistent
// timespace configuration stored in the .timespace/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent timespace configuration.

Configuration is stored as config.toml in the .timespace/ directory and
provides default values for command flags. CLI flags and TIMESPACE_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  stream.target, stream.message_param, stream.thread_param,
  chat.markdown, chat.log_file,
  eventstream.provider, eventstream.kafka_brokers, eventstream.kafka_topic

Use subcommands to get, set, or list configuration values:
  timespace config set <key> <value>    Set a configuration value
  timespace config get <key>            Get a configuration value
  timespace config list                 List all configuration values

Examples:
  timespace config set stream.target http://127.0.0.1:8000/stream
  timespace config set chat.markdown false
  timespace config get stream.target
  timespace config list`

const configShortDesc string = "Manage persistent timespace configuration"

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
