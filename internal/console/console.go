// Package console is the interactive terminal front end: it prints the loaded
// conversation, reads one prompt per line and shows each reply.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/petasbytes/memchat/internal/metrics"
	"github.com/petasbytes/memchat/internal/runner"
	"github.com/petasbytes/memchat/memory"
)

const (
	cmdExit    = "/exit"
	cmdHistory = "/history"

	defaultWidth = 80
	minWidth     = 40
)

// Turner runs one prompt through the model and the history store.
type Turner interface {
	RunTurn(ctx context.Context, text string) (runner.Result, error)
}

// HistorySource supplies the current transcript for /history.
type HistorySource interface {
	Transcript() memory.Transcript
}

type Options struct {
	Markdown      bool   // render replies with glamour
	Width         int    // 0 detects the terminal width
	Document      string // shown in the history header
	AssistantName string
}

type Console struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	turner  Turner
	history HistorySource
	opts    Options
	styles  styles
	md      *glamour.TermRenderer

	once    sync.Once
	lines   chan string
	scanErr error
}

type styles struct {
	user, assistant, header, hint, warn, err lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		header:    r.NewStyle().Bold(true).Underline(true),
		hint:      r.NewStyle().Faint(true),
		warn:      r.NewStyle().Foreground(lipgloss.Color("11")),
		err:       r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// New builds a console. It can prompt for credentials (AuthCode) before a
// session is attached with Attach.
func New(in io.Reader, out, errOut io.Writer, opts Options) *Console {
	if opts.AssistantName == "" {
		opts.AssistantName = "Assistant"
	}
	if opts.Width <= 0 {
		opts.Width = terminalWidth(out)
	}
	c := &Console{
		in:     in,
		out:    out,
		errOut: errOut,
		opts:   opts,
		styles: newStyles(out),
	}
	if opts.Markdown {
		style := glamour.WithStandardStyle("notty")
		if isTerminal(out) {
			style = glamour.WithAutoStyle()
		}
		md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
		if err == nil {
			c.md = md
		}
	}
	return c
}

// Attach connects the console to a running session.
func (c *Console) Attach(t Turner, h HistorySource) {
	c.turner = t
	c.history = h
}

// Run reads prompts until EOF, /exit or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	if c.turner == nil {
		return errors.New("console: no session attached")
	}
	c.PrintHistory()
	fmt.Fprintln(c.out, c.styles.hint.Render(fmt.Sprintf("Type %s to reprint the conversation, %s to quit.", cmdHistory, cmdExit)))

	for {
		fmt.Fprint(c.out, c.styles.user.Render("You")+": ")
		line, ok := c.readLine(ctx)
		if !ok {
			fmt.Fprintln(c.out)
			if ctx.Err() != nil {
				return nil
			}
			return c.scanErr
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case cmdExit:
			return nil
		case cmdHistory:
			c.PrintHistory()
			continue
		}

		res, err := c.turner.RunTurn(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(c.errOut, c.styles.err.Render("error: "+err.Error()))
			continue
		}
		c.printReply(res.Reply)
		if res.PersistErr != nil {
			fmt.Fprintln(c.errOut, c.styles.warn.Render("warning: "+res.PersistErr.Error()+"; the turn is kept for this session"))
		}
	}
}

// PrintHistory prints the transcript with a size summary.
func (c *Console) PrintHistory() {
	var t memory.Transcript
	if c.history != nil {
		t = c.history.Transcript()
	}
	pairs := t.Pairs()
	if len(pairs) == 0 {
		fmt.Fprintln(c.out, c.styles.hint.Render("No earlier conversation."))
		return
	}
	sum := metrics.Summarize(t)
	header := fmt.Sprintf("%s: %s, %s", c.documentName(), exchanges(sum.Pairs), humanize.Bytes(uint64(sum.Bytes())))
	fmt.Fprintln(c.out, c.styles.header.Render(header))
	for _, p := range pairs {
		fmt.Fprintln(c.out, c.styles.user.Render("You")+": "+p.User)
		c.printReply(p.Assistant)
	}
	fmt.Fprintln(c.out)
}

// AuthCode asks the user to authorize access and reads the pasted code.
func (c *Console) AuthCode(ctx context.Context, authURL string) (string, error) {
	fmt.Fprintln(c.out, "Open this link, grant access, then paste the code shown:")
	fmt.Fprintln(c.out, authURL)
	fmt.Fprint(c.out, "Code: ")
	line, ok := c.readLine(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no authorization code entered")
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) printReply(text string) {
	fmt.Fprint(c.out, c.styles.assistant.Render(c.opts.AssistantName)+": ")
	if c.md == nil {
		fmt.Fprintln(c.out, text)
		return
	}
	rendered, err := c.md.Render(text)
	if err != nil {
		fmt.Fprintln(c.out, text)
		return
	}
	fmt.Fprintln(c.out, strings.TrimRight(rendered, "\n"))
}

func (c *Console) documentName() string {
	if c.opts.Document == "" {
		return "History"
	}
	return c.opts.Document
}

// readLine returns false once input is exhausted or ctx is done. Lines come
// from a single reader goroutine shared by AuthCode and Run.
func (c *Console) readLine(ctx context.Context) (string, bool) {
	c.once.Do(func() {
		c.lines = make(chan string)
		go func() {
			sc := bufio.NewScanner(c.in)
			sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for sc.Scan() {
				c.lines <- sc.Text()
			}
			c.scanErr = sc.Err()
			close(c.lines)
		}()
	})
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-c.lines:
		return line, ok
	}
}

func exchanges(n int) string {
	if n == 1 {
		return "1 exchange"
	}
	return humanize.Comma(int64(n)) + " exchanges"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return max(width, minWidth)
}
