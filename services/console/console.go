// Package console is a line-oriented front end to the keyboard service.
// Lines are split shell-style, so quoted macro text may contain spaces.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"chatpad-go/bus"
	"chatpad-go/errcode"
	"chatpad-go/services/keyboard"
	"chatpad-go/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/shlex"
)

const defaultTimeout = 2 * time.Second

var (
	ErrUnknownCommand = errors.New("console: unknown command")
	ErrUsage          = errors.New("console: bad arguments")
)

var (
	styleLabel = lipgloss.NewStyle().
			Bold(true).
			Width(9)

	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleDimmed = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

const usage = `commands:
  status | start | stop
  macro get <letter>
  macro set <letter> ["text"]
  newline on|off
  text "<text>"
  help`

type Console struct {
	conn    *bus.Connection
	out     io.Writer
	timeout time.Duration
}

func New(conn *bus.Connection, out io.Writer) *Console {
	return &Console{conn: conn, out: out, timeout: defaultTimeout}
}

// Run executes lines from in until EOF or ctx ends. Command errors are
// printed, not returned.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.Exec(ctx, sc.Text()); err != nil {
			fmt.Fprintln(c.out, styleError.Render(err.Error()))
		}
	}
	return sc.Err()
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "help", "?":
		fmt.Fprintln(c.out, usage)
		return nil
	case keyboard.CtrlStatus, keyboard.CtrlStart, keyboard.CtrlStop:
		if len(args) != 1 {
			return ErrUsage
		}
		rep, err := c.request(ctx, keyboard.TopicChatpad(args[0]), nil)
		if err != nil {
			return err
		}
		st, ok := rep.(types.ChatpadState)
		if !ok {
			return errcode.InvalidPayload
		}
		c.row("chatpad", st.Status.String())
		return nil
	case keyboard.TokMacro:
		return c.macro(ctx, args[1:])
	case keyboard.TokNewline:
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return ErrUsage
		}
		if _, err := c.request(ctx, keyboard.TopicNewline(), types.NewlineSet{Enable: args[1] == "on"}); err != nil {
			return err
		}
		c.row("newline", args[1])
		return nil
	case keyboard.TokText:
		if len(args) < 2 {
			return ErrUsage
		}
		_, err := c.request(ctx, keyboard.TopicText(), types.TextEntry{Text: strings.Join(args[1:], " ")})
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}
}

func (c *Console) macro(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	switch args[0] {
	case keyboard.CtrlGet:
		if len(args) != 2 {
			return ErrUsage
		}
		rep, err := c.request(ctx, keyboard.TopicMacro(keyboard.CtrlGet), types.MacroGet{Key: args[1]})
		if err != nil {
			return err
		}
		v, ok := rep.(types.MacroValue)
		if !ok {
			return errcode.InvalidPayload
		}
		if !v.OK {
			c.row("macro "+v.Key, styleDimmed.Render("(unset)"))
			return nil
		}
		c.row("macro "+v.Key, fmt.Sprintf("%q", v.Text))
		return nil
	case keyboard.CtrlSet:
		if len(args) > 3 {
			return ErrUsage
		}
		text := ""
		if len(args) == 3 {
			text = args[2]
		}
		if _, err := c.request(ctx, keyboard.TopicMacro(keyboard.CtrlSet), types.MacroSet{Key: args[1], Text: text}); err != nil {
			return err
		}
		c.row("macro "+args[1], styleOK.Render("ok"))
		return nil
	default:
		return ErrUsage
	}
}

// request sends payload and converts an error reply into its code.
func (c *Console) request(ctx context.Context, topic bus.Topic, payload any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rep, err := c.conn.RequestWait(ctx, c.conn.NewMessage(topic, payload, false))
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, errcode.Timeout
	}
	if err != nil {
		return nil, err
	}
	if e, ok := rep.Payload.(types.ErrorReply); ok {
		return nil, errcode.Code(e.Error)
	}
	return rep.Payload, nil
}

func (c *Console) row(label, value string) {
	fmt.Fprintln(c.out, styleLabel.Render(label), value)
}

// Echo prints key events as they arrive until ctx ends.
func (c *Console) Echo(ctx context.Context) {
	sub := c.conn.Subscribe(keyboard.TopicEvent())
	defer c.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if ev, ok := m.Payload.(types.KeyEvent); ok {
				c.row(ev.Type.String(), fmt.Sprintf("%q", ev.Text()))
			}
		}
	}
}
