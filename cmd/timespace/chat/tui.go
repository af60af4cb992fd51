package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/timespace/pkg/cliui"
	"github.com/papercomputeco/timespace/pkg/session"
	"github.com/papercomputeco/timespace/pkg/stream"
	"github.com/papercomputeco/timespace/pkg/utils"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

var (
	chatTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	chatReplyStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// Rows taken by everything but the transcript: title, status, input, help.
const chromeHeight = 5

type chatKeyMap struct {
	Send      key.Binding
	Reconnect key.Binding
	Stop      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Quit      key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Reconnect, k.Stop, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Reconnect, k.Stop}, {k.PageUp, k.PageDown, k.Quit}}
}

func defaultKeyMap() chatKeyMap {
	return chatKeyMap{
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Reconnect: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reconnect")),
		Stop:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		PageUp:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
	}
}

// exchange is one query and the latest reply streamed for it.
type exchange struct {
	query    string
	reply    string
	hasReply bool
	fault    error
	stopped  bool

	// Rendered markdown for reply at renderedWidth.
	rendered      string
	renderedFor   string
	renderedWidth int
}

// updatesMsg carries a batch of stream updates from the session mailbox.
type updatesMsg []stream.Update

// mailboxClosedMsg stops the update loop.
type mailboxClosedMsg struct{}

type chatModel struct {
	ctx    context.Context
	sess   *session.Session
	logger *slog.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     chatKeyMap

	exchanges []*exchange
	state     stream.State
	markdown  bool
	width     int
	height    int
	ready     bool
}

func newChatModel(ctx context.Context, sess *session.Session, markdown bool, l *slog.Logger) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask something"
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		ctx:      ctx,
		sess:     sess,
		logger:   l,
		input:    ti,
		spinner:  sp,
		help:     help.New(),
		keys:     defaultKeyMap(),
		state:    stream.StateClosed,
		markdown: markdown,
	}
}

// waitForUpdates blocks on the mailbox in a command goroutine so the
// stream's observer never waits on the UI loop.
func waitForUpdates(ctx context.Context, mailbox *stream.Mailbox) bubbletea.Cmd {
	return func() bubbletea.Msg {
		batch, err := mailbox.Wait(ctx)
		if err != nil {
			return mailboxClosedMsg{}
		}
		return updatesMsg(batch)
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return bubbletea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForUpdates(m.ctx, m.sess.Mailbox()),
	)
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height), nil
	case updatesMsg:
		for _, u := range msg {
			m = m.apply(u)
		}
		return m.refresh(), waitForUpdates(m.ctx, m.sess.Mailbox())
	case mailboxClosedMsg:
		return m, nil
	case spinner.TickMsg:
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, bubbletea.Quit
	case key.Matches(msg, m.keys.Send):
		return m.send()
	case key.Matches(msg, m.keys.Reconnect):
		return m.reconnect(), nil
	case key.Matches(msg, m.keys.Stop):
		return m.stop(), nil
	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send opens a new connection for the typed query, replacing whatever is
// streaming now.
func (m chatModel) send() (bubbletea.Model, bubbletea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}
	if query == "/exit" {
		return m, bubbletea.Quit
	}
	m.input.Reset()

	prev := m.sess.Client().Current()
	h, err := m.sess.Ask(query)
	if err != nil {
		m.logger.Error("sending query", "error", err)
		m.exchanges = append(m.exchanges, &exchange{query: query, fault: err})
		m.state = stream.StateClosed
		return m.refresh(), nil
	}

	// The same query is still streaming; keep showing it in place.
	if h == prev && m.last() != nil {
		m.logger.Debug("query already streaming", "handle", h.ID())
		return m.refresh(), nil
	}

	if last := m.last(); last != nil && m.state != stream.StateClosed {
		last.stopped = true
	}
	m.exchanges = append(m.exchanges, &exchange{query: query})

	m.logger.Debug("query sent", "query", utils.Truncate(query, 64), "handle", h.ID())
	m.state = stream.StateConnecting
	return m.refresh(), nil
}

// reconnect re-issues the last query on a fresh connection. This is the
// only way a faulted stream is retried.
func (m chatModel) reconnect() chatModel {
	last := m.last()
	if last == nil {
		return m
	}

	if _, err := m.sess.Reconnect(); err != nil {
		m.logger.Error("reconnecting", "error", err)
		last.fault = err
		return m.refresh()
	}

	last.reply, last.hasReply = "", false
	last.fault = nil
	last.stopped = false
	m.state = stream.StateConnecting
	return m.refresh()
}

func (m chatModel) stop() chatModel {
	last := m.last()
	if last == nil || m.state == stream.StateClosed {
		return m
	}

	m.sess.Stop()
	last.stopped = true
	m.state = stream.StateClosed
	return m.refresh()
}

// apply folds one update into the last exchange. Updates from connections
// that were replaced while they sat in the mailbox are dropped.
func (m chatModel) apply(u stream.Update) chatModel {
	if !m.sess.IsCurrent(u) {
		return m
	}

	last := m.last()
	if last == nil {
		return m
	}

	switch u.Kind {
	case stream.UpdateOpened:
		m.state = stream.StateOpen
	case stream.UpdateMessage:
		last.reply = u.Payload
		last.hasReply = true
	case stream.UpdateFaulted:
		m.logger.Warn("stream faulted", "error", u.Fault)
		last.fault = u.Fault
		m.state = stream.StateClosed
	case stream.UpdateClosed:
		m.state = stream.StateClosed
	}
	return m
}

func (m chatModel) last() *exchange {
	if len(m.exchanges) == 0 {
		return nil
	}
	return m.exchanges[len(m.exchanges)-1]
}

func (m chatModel) resize(width, height int) chatModel {
	m.width = width
	m.height = height

	vh := max(height-chromeHeight, 1)
	if !m.ready {
		m.viewport = viewport.New(width, vh)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vh
	}

	m.input.Width = max(width-4, 10)
	m.help.Width = width
	return m.refresh()
}

func (m chatModel) refresh() chatModel {
	if !m.ready {
		return m
	}
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
	return m
}

func (m chatModel) transcript() string {
	if len(m.exchanges) == 0 {
		return cliui.DimStyle.Render("Type a message and press enter.")
	}

	var b strings.Builder
	for i, ex := range m.exchanges {
		isLast := i == len(m.exchanges)-1

		fmt.Fprintf(&b, "%s %s\n", cliui.NameStyle.Render("you"), ex.query)

		switch {
		case ex.hasReply:
			b.WriteString(m.renderReply(ex))
			b.WriteString("\n")
		case isLast && m.state != stream.StateClosed:
			b.WriteString(chatReplyStyle.Render(cliui.DimStyle.Render("waiting for reply")))
			b.WriteString("\n")
		}

		if ex.fault != nil {
			b.WriteString(chatReplyStyle.Render(
				cliui.FaultStyle.Render(cliui.FailMark+" "+faultText(ex.fault)) +
					cliui.DimStyle.Render("  ctrl+r to retry"),
			))
			b.WriteString("\n")
		} else if ex.stopped {
			b.WriteString(chatReplyStyle.Render(cliui.DimStyle.Render("(stopped)")))
			b.WriteString("\n")
		}

		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// faultText drops the target from transport faults; the header already
// shows it.
func faultText(err error) string {
	var fault *stream.TransportFault
	if errors.As(err, &fault) && fault.Err != nil {
		return fault.Err.Error()
	}
	return err.Error()
}

func (m chatModel) renderReply(ex *exchange) string {
	width := max(m.width-4, 20)

	if !m.markdown {
		return chatReplyStyle.Width(width).Render(ex.reply)
	}

	if ex.renderedFor == ex.reply && ex.renderedWidth == width && ex.rendered != "" {
		return ex.rendered
	}

	rendered, err := cliui.RenderMarkdownWidth(ex.reply, width)
	if err != nil {
		m.logger.Debug("markdown render failed", "error", err)
		rendered = chatReplyStyle.Width(width).Render(ex.reply)
	}
	rendered = strings.Trim(rendered, "\n")

	ex.rendered = rendered
	ex.renderedFor = ex.reply
	ex.renderedWidth = width
	return rendered
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  initializing"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(),
		m.viewport.View(),
		m.viewStatus(),
		m.input.View(),
		cliui.DimStyle.Render(m.help.View(m.keys)),
	)
}

func (m chatModel) viewHeader() string {
	thread := m.sess.ThreadID()
	return chatTitleStyle.Render("TimeSpace") + "  " +
		cliui.DimStyle.Render(fmt.Sprintf("%s  thread %s", m.sess.Base().String(), utils.Truncate(thread, 8)))
}

func (m chatModel) viewStatus() string {
	switch m.state {
	case stream.StateConnecting:
		return m.spinner.View() + " " + cliui.DimStyle.Render("connecting")
	case stream.StateOpen:
		return m.spinner.View() + " " + cliui.DimStyle.Render("streaming")
	default:
		if last := m.last(); last != nil && last.fault != nil {
			var fault *stream.TransportFault
			if errors.As(last.fault, &fault) {
				return cliui.FailMark + " " + cliui.DimStyle.Render("stream failed")
			}
			return cliui.FailMark + " " + cliui.DimStyle.Render("not sent")
		}
		return cliui.DimStyle.Render("idle")
	}
}
