// Package chatcmder provides the interactive chat command.
package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/timespace/pkg/config"
	"github.com/papercomputeco/timespace/pkg/dotdir"
	"github.com/papercomputeco/timespace/pkg/logger"
	"github.com/papercomputeco/timespace/pkg/session"
)

const chatLongDesc string = `Open an interactive chat against the configured stream target.

Every message you send opens a new stream connection and closes the
previous one, so a reply that is still streaming is replaced by the reply
to the newer message. The latest reply is redrawn in place as it streams.

A failed stream is never retried on its own: the error is shown next to
the message and ctrl+r sends it again. esc stops the current stream and
keeps what has arrived so far.

Logs go to the chat log file in the .timespace directory because the
terminal is taken over by the interface.

Examples:
  timespace chat
  timespace chat --target http://localhost:8000/stream
  timespace chat "summarize my inbox"`

const chatShortDesc string = "Chat with a streaming endpoint"

var streamFlags = []string{
	config.FlagTarget,
	config.FlagMessageParam,
	config.FlagThreadParam,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type chatCommander struct {
	flags struct {
		target       string
		messageParam string
		threadParam  string
		eventStream  string
		kafkaBrokers string
		kafkaTopic   string
	}

	threadID  string
	markdown  bool
	debug     bool
	configDir string

	cfg    *config.Config
	logger *slog.Logger
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:          "chat [message]",
		SilenceUsage: true,
		Short:        chatShortDesc,
		Long:         chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.StreamFlags, streamFlags)
			cmder.cfg = config.FromViper(v)

			cmder.markdown = cmder.cfg.Chat.Markdown
			if cmd.Flags().Changed("no-markdown") {
				noMarkdown, _ := cmd.Flags().GetBool("no-markdown")
				cmder.markdown = !noMarkdown
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, strings.TrimSpace(strings.Join(args, " ")))
		},
	}

	config.AddStringFlag(cmd, config.StreamFlags, config.FlagTarget, &cmder.flags.target)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagMessageParam, &cmder.flags.messageParam)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagThreadParam, &cmder.flags.threadParam)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagEventStream, &cmder.flags.eventStream)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagKafkaTopic, &cmder.flags.kafkaTopic)
	cmd.Flags().StringVar(&cmder.threadID, "thread", "", "Conversation thread id (defaults to a new one)")
	cmd.Flags().Bool("no-markdown", false, "Show replies as plain text instead of rendered markdown")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, initial string) error {
	logFile, err := c.openLog()
	if err != nil {
		return err
	}
	defer logFile.Close()

	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithSource(c.debug),
		logger.WithWriter(logFile),
	)

	sess, err := session.New(session.Options{
		Config:   c.cfg,
		ThreadID: c.threadID,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Warn("closing session", "error", err)
		}
	}()

	model := newChatModel(ctx, sess, c.markdown, c.logger)
	if initial != "" {
		model.input.SetValue(initial)
		next, _ := model.send()
		model = next.(chatModel)
	}

	program := bubbletea.NewProgram(model, bubbletea.WithContext(ctx), bubbletea.WithAltScreen())
	if _, err := program.Run(); err != nil && !errors.Is(err, bubbletea.ErrProgramKilled) {
		return fmt.Errorf("running chat: %w", err)
	}
	return nil
}

func (c *chatCommander) openLog() (*os.File, error) {
	path, err := dotdir.NewManager().Path(c.configDir, c.cfg.Chat.LogFile)
	if err != nil {
		return nil, fmt.Errorf("resolving chat log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening chat log: %w", err)
	}
	return f, nil
}
