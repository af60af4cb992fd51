// Package timespacecmder
package timespacecmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/timespace/cmd/timespace/chat"
	configcmder "github.com/papercomputeco/timespace/cmd/timespace/config"
	tailcmder "github.com/papercomputeco/timespace/cmd/timespace/tail"
	versioncmder "github.com/papercomputeco/timespace/cmd/version"
)

const timespaceLongDesc string = `TimeSpace is a terminal chat front-end for streaming agents.

Every message you send opens a server-sent event stream against the
configured target; the latest message on the stream is the reply.

Commands:
  timespace chat            Interactive chat
  timespace tail <message>  Print the replies to one message
  timespace config          Manage persistent configuration`

const timespaceShortDesc string = "TimeSpace - streaming chat client"

func NewTimespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "timespace",
		Short:        timespaceShortDesc,
		Long:         timespaceLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (defaults to ./.timespace or ~/.timespace)")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(tailcmder.NewTailCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
