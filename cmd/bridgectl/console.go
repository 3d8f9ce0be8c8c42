package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/command"
	"github.com/x64dbg/bridge/msgqueue"
)

const maxHistory = 200

// eventPatches is posted on the session event queue whenever the sandbox
// patch set changes.
const eventPatches int32 = 1

func newConsoleCmd(opts *globalOptions) *cobra.Command {
	var lineMode bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive command console",
		Long: `Commands typed here are queued on the command channel and executed by
a separate command loop against a sandbox address space.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			if lineMode || !term.IsTerminal(int(os.Stdout.Fd())) {
				return a.runLines(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return a.runTUI(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&lineMode, "lines", false, "Read commands line by line instead of the TUI")
	return cmd
}

// session is a command channel plus the loop draining it. Update
// notifications from the command loop travel on a separate event queue.
type session struct {
	ch      *command.Channel
	events  *msgqueue.Queue
	results chan string
	done    chan error
	cancel  context.CancelFunc
	logger  *zap.Logger
}

func (a *app) startSession(ctx context.Context) *session {
	ctx, cancel := context.WithCancel(ctx)
	results := make(chan string, 16)
	s := &session{
		ch:      command.New(append(a.cfg.CommandOptions(), command.WithLogger(a.logger.Named("command")))...),
		events:  msgqueue.New(append(a.cfg.QueueOptions(), msgqueue.WithLogger(a.logger.Named("events")))...),
		results: results,
		done:    make(chan error, 1),
		cancel:  cancel,
		logger:  a.logger,
	}
	in := newInterpreter(results, bridge.PatchNotifierFunc(s.patchesChanged))
	go func() {
		s.done <- s.ch.Run(ctx, in.execute)
	}()
	return s
}

// stop closes the channel first so the loop ends with a nil error, then
// cancels to release a handler blocked on a full results channel.
func (s *session) stop() error {
	s.ch.Close()
	s.events.Close()
	s.cancel()
	if err := <-s.done; err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *session) patchesChanged() {
	ok, err := s.events.Send(eventPatches, 0, 0)
	if !ok || err != nil {
		s.logger.Debug("patch event dropped", zap.Error(err))
	}
}

// drainEvents returns a line per pending event.
func (s *session) drainEvents() []string {
	var lines []string
	for {
		m, ok := s.events.TryReceive()
		if !ok {
			return lines
		}
		switch m.Kind {
		case eventPatches:
			lines = append(lines, "event: patches changed")
		default:
			lines = append(lines, fmt.Sprintf("event: %v", m))
		}
	}
}

// runLines executes one command per input line and prints its result.
func (a *app) runLines(ctx context.Context, r io.Reader, w io.Writer) error {
	s := a.startSession(ctx)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		ok, err := s.ch.Exec(line)
		if err != nil {
			_ = s.stop()
			return err
		}
		if !ok {
			fmt.Fprintln(w, "busy: command dropped")
			continue
		}
		select {
		case res := <-s.results:
			fmt.Fprintln(w, res)
			for _, ev := range s.drainEvents() {
				fmt.Fprintln(w, ev)
			}
		case <-ctx.Done():
			_ = s.stop()
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		_ = s.stop()
		return err
	}
	return s.stop()
}

func (a *app) runTUI(ctx context.Context) error {
	s := a.startSession(ctx)
	m := newConsoleModel(s.ch, s.results)
	m.events = s.drainEvents
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		a.logger.Error("console failed", zap.Error(err))
		_ = s.stop()
		return err
	}
	return s.stop()
}

type resultMsg string

type consoleModel struct {
	ch      *command.Channel
	results <-chan string
	events  func() []string
	input   textinput.Model
	history []string
	status  string
}

func newConsoleModel(ch *command.Channel, results <-chan string) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "help"
	ti.Prompt = "> "
	ti.Width = 60
	ti.CharLimit = command.MaxCommandLength - 1
	ti.Focus()
	return &consoleModel{ch: ch, results: results, input: ti}
}

func (m *consoleModel) waitResult() tea.Msg {
	res, ok := <-m.results
	if !ok {
		return nil
	}
	return resultMsg(res)
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitResult)
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			m.push("> " + line)
			ok, err := m.ch.Exec(line)
			switch {
			case err != nil:
				m.status = err.Error()
			case !ok:
				m.status = "busy: command dropped"
			default:
				m.status = fmt.Sprintf("%d pending", m.ch.Pending())
			}
			return m, nil
		}

	case resultMsg:
		for _, l := range strings.Split(string(msg), "\n") {
			m.push(l)
		}
		if m.events != nil {
			for _, ev := range m.events() {
				m.push(ev)
			}
		}
		m.status = ""
		return m, m.waitResult
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) push(line string) {
	m.history = append(m.history, line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

func (m *consoleModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("bridgectl console"))
	b.WriteString("\n\n")
	for _, l := range m.history {
		if strings.HasPrefix(l, "error: ") {
			b.WriteString(errorStyle.Render(l))
		} else {
			b.WriteString(l)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(helpStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter run • esc quit"))
	return b.String()
}
