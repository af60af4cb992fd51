// Package tailcmder provides the tail command, a non-interactive consumer
// that prints every reply streamed for a message.
package tailcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/papercomputeco/timespace/pkg/cliui"
	"github.com/papercomputeco/timespace/pkg/config"
	"github.com/papercomputeco/timespace/pkg/logger"
	"github.com/papercomputeco/timespace/pkg/session"
	"github.com/papercomputeco/timespace/pkg/stream"
	"github.com/papercomputeco/timespace/pkg/watch"
)

const tailLongDesc string = `Stream the replies to a message and print each one on its own line.

The message is sent to the configured stream target and every payload the
stream delivers is printed as it arrives. The command exits when the
stream ends, fails with an error when the stream faults, and never retries.

With --follow the message is read from a file instead, and the stream is
re-targeted every time the file is saved; the command then runs until
interrupted.

Examples:
  timespace tail "what is on my calendar tomorrow?"
  timespace tail --target http://localhost:8000/stream "hello"
  timespace tail --follow query.txt --raw stream.log`

const tailShortDesc string = "Print the streamed replies to a message"

// streamFlags are the registry flags this command binds.
var streamFlags = []string{
	config.FlagTarget,
	config.FlagMessageParam,
	config.FlagThreadParam,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type tailCommander struct {
	flags struct {
		target       string
		messageParam string
		threadParam  string
		eventStream  string
		kafkaBrokers string
		kafkaTopic   string
	}

	follow   string
	raw      string
	logFile  string
	threadID string
	debug    bool

	cfg    *config.Config
	out    io.Writer
	errOut io.Writer
	strip  bool
	logger *slog.Logger
}

func NewTailCmd() *cobra.Command {
	cmder := &tailCommander{}

	cmd := &cobra.Command{
		Use:          "tail [message]",
		SilenceUsage: true,
		Short:        tailShortDesc,
		Long:         tailLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.StreamFlags, streamFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			cmder.strip = !isTerminal(cmder.out)

			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" && cmder.follow == "" {
				return errors.New("a message or --follow <file> is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, message)
		},
	}

	config.AddStringFlag(cmd, config.StreamFlags, config.FlagTarget, &cmder.flags.target)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagMessageParam, &cmder.flags.messageParam)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagThreadParam, &cmder.flags.threadParam)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagEventStream, &cmder.flags.eventStream)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddStringFlag(cmd, config.StreamFlags, config.FlagKafkaTopic, &cmder.flags.kafkaTopic)
	cmd.Flags().StringVarP(&cmder.follow, "follow", "f", "", "Read the message from a file and re-send it whenever the file changes")
	cmd.Flags().StringVar(&cmder.raw, "raw", "", "Write the raw event stream bytes to a file")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write debug logs as JSON to a file")
	cmd.Flags().StringVar(&cmder.threadID, "thread", "", "Conversation thread id (defaults to a new one)")

	return cmd
}

func (c *tailCommander) run(ctx context.Context, message string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(c.errOut),
	)

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithDebug(true),
			logger.WithJSON(true),
			logger.WithSource(c.debug),
			logger.WithWriter(f),
		))
	}

	var tee io.Writer
	if c.raw != "" {
		f, err := os.Create(c.raw)
		if err != nil {
			return fmt.Errorf("creating raw stream file: %w", err)
		}
		defer f.Close()
		tee = f
	}

	sess, err := session.New(session.Options{
		Config:   c.cfg,
		ThreadID: c.threadID,
		Logger:   c.logger,
		Tee:      tee,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Warn("closing session", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if c.follow != "" {
		g.Go(func() error {
			return watch.Follow(gctx, c.follow, func(query string) {
				c.logger.Info("query changed, retargeting", "query", query)
				if _, err := sess.Ask(query); err != nil {
					c.logger.Error("retarget failed", "error", err)
				}
			}, watch.WithLogger(c.logger))
		})
	} else {
		if _, err := sess.Ask(message); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return c.print(gctx, sess)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, errStreamEnded) {
		return nil
	}
	return err
}

// errStreamEnded stops the errgroup when the source closes the stream.
var errStreamEnded = errors.New("stream ended")

// print writes payloads from the current connection until the stream ends
// or faults. With --follow it keeps going across connections.
func (c *tailCommander) print(ctx context.Context, sess *session.Session) error {
	for {
		batch, err := sess.Mailbox().Wait(ctx)
		if err != nil {
			return err
		}

		for _, u := range batch {
			if !sess.IsCurrent(u) {
				continue
			}

			switch u.Kind {
			case stream.UpdateOpened:
				c.logger.Debug("stream open", "target", u.Handle.Target().String())
			case stream.UpdateMessage:
				payload := u.Payload
				if c.strip {
					payload = ansi.Strip(payload)
				}
				fmt.Fprintln(c.out, payload)
			case stream.UpdateFaulted:
				if c.follow == "" {
					return u.Fault
				}
				// Following keeps running; the next save retargets.
				fmt.Fprintf(c.errOut, "%s %v\n", cliui.FailMark, u.Fault)
			case stream.UpdateClosed:
				c.logger.Debug("stream closed by source", "target", u.Handle.Target().String())
				if c.follow == "" {
					return errStreamEnded
				}
			}
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
