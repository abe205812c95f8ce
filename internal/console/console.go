// Package console renders the human-facing transcript of a run: a startup
// banner, progress lines, numbered challenge entries and the final server
// message. Structured diagnostics go through zerolog instead.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const Version = "1.0.0"

// Feature is one banner row.
type Feature struct {
	Name    string
	Enabled bool
}

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	info    lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	enabled lipgloss.Style
	quote   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1),
		dim:     r.NewStyle().Foreground(lipgloss.Color("241")),
		info:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		enabled: r.NewStyle().Foreground(lipgloss.Color("2")),
		quote:   r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Console writes styled lines to w. Safe for concurrent use.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	st     styles
	number int
}

// New returns a console writing to w. With ansi false every line is plain
// text, which is also what a non-terminal writer gets.
func New(w io.Writer, ansi bool) *Console {
	r := lipgloss.NewRenderer(w)
	if !ansi {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Console{w: w, st: newStyles(r), number: 1}
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, line)
}

// Banner prints the title and the active feature list.
func (c *Console) Banner(features []Feature) {
	var b strings.Builder
	b.WriteString(c.st.title.Render("SuperClient " + Version))
	b.WriteString("\n")
	b.WriteString(c.st.dim.Render("Answers server challenges over an unreliable datagram link."))
	b.WriteString("\n\n   Active features:\n")
	for _, f := range features {
		mark := "_"
		style := c.st.dim
		if f.Enabled {
			mark = "X"
			style = c.st.enabled
		}
		b.WriteString("    ")
		b.WriteString(style.Render(fmt.Sprintf("- %-11s [%s]", f.Name, mark)))
		b.WriteString("\n")
	}
	c.println(b.String())
}

func (c *Console) Info(text string) {
	c.println(c.st.info.Render("[INFO]") + " " + text)
}

func (c *Console) OK(text string) {
	c.println("       " + c.st.ok.Render("» "+text))
}

func (c *Console) Warn(text string) {
	c.println(c.st.warn.Render("[WARN]") + " " + text)
}

// Challenge prints one numbered exchange.
func (c *Console) Challenge(challenge, response string) {
	c.mu.Lock()
	n := c.number
	c.number++
	c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "        %d. Challenge accepted:\n", n)
	fmt.Fprintf(&b, "           » %s\n", c.st.quote.Render(quoted(challenge)))
	fmt.Fprintf(&b, "           « %s\n", c.st.quote.Render(quoted(response)))
	c.println(b.String())
}

// Final prints the end-of-exchange message and resets numbering.
func (c *Console) Final(message string) {
	c.mu.Lock()
	c.number = 1
	c.mu.Unlock()
	c.println("        Server: " + quoted(message) + "\n")
}

// quoted wraps text in double quotes without escaping it, so the transcript
// shows exactly what was exchanged.
func quoted(text string) string {
	return `"` + text + `"`
}
