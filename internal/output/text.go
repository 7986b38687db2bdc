package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
)

type textStyles struct {
	started   lipgloss.Style
	changed   lipgloss.Style
	ended     lipgloss.Style
	panel     lipgloss.Style
	errorCode lipgloss.Style
	muted     lipgloss.Style
}

func newTextStyles(color bool) textStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return textStyles{plain, plain, plain, plain, plain, plain}
	}
	return textStyles{
		started:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		changed:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		ended:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		panel:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		errorCode: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// TextWriter renders events as one human-readable line each. Colors are used
// only when writing to a terminal.
type TextWriter struct {
	mu     sync.Mutex
	w      io.Writer
	styles textStyles
}

// NewTextWriter creates a text writer on w.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w, styles: newTextStyles(IsTerminal(w))}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Write renders a known event, falling back to %v for anything else.
func (t *TextWriter) Write(event any) error {
	line := t.render(event)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, line)
	return err
}

// WriteError writes "Error [CODE]: message (hint: ...)".
func (t *TextWriter) WriteError(code, message string, hint ...string) error {
	line := fmt.Sprintf("%s %s", t.styles.errorCode.Render("Error ["+code+"]:"), message)
	if len(hint) > 0 && hint[0] != "" {
		line += t.styles.muted.Render(fmt.Sprintf(" (hint: %s)", hint[0]))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, line)
	return err
}

func keys(ks []domain.ClientKey) string {
	if len(ks) == 0 {
		return "-"
	}
	return strings.Join(lo.Map(ks, func(k domain.ClientKey, _ int) string { return k.String() }), ",")
}

func (t *TextWriter) render(event any) string {
	s := t.styles
	switch e := event.(type) {
	case *domain.SessionStarted:
		line := fmt.Sprintf("%s session %d in project %d by %s",
			s.started.Render("STARTED"), e.SessionID, e.ProjectID, e.Client)
		if e.Scenario != nil {
			line += s.muted.Render(fmt.Sprintf(" [%s %s %s]", e.Scenario.Label, e.Scenario.Adapter, e.Scenario.Request))
		}
		return line
	case *domain.MembershipChanged:
		return fmt.Sprintf("%s session %d %s %s members=%s caps=%s",
			s.changed.Render("MEMBERS"), e.SessionID, e.Reason, e.Client, keys(e.Members), e.Negotiated)
	case *domain.SessionObserverless:
		return fmt.Sprintf("%s session %d in project %d (%s, last %s)",
			s.ended.Render("OBSERVERLESS"), e.SessionID, e.ProjectID, e.Reason, e.LastClient)
	case *domain.PanelUpdate:
		return fmt.Sprintf("%s %s -> %s seq=%d %d bytes",
			s.panel.Render("PANEL"), e.From, e.To, e.Seq, len(e.PanelItem))
	case *domain.ClientSnapshot:
		return fmt.Sprintf("%s session=%d caps=%s panel=%dB", e.Client, e.SessionID, e.Capabilities, e.PanelBytes)
	case *domain.SessionSnapshot:
		return fmt.Sprintf("session %d project %d members=%s caps=%s", e.SessionID, e.ProjectID, keys(e.Members), e.Negotiated)
	case *Delivery:
		return fmt.Sprintf("%s %s %s", s.muted.Render("-> "+e.To.String()), e.Kind, t.render(e.Payload))
	case *Info:
		return e.Message
	case fmt.Stringer:
		return e.String()
	}
	return fmt.Sprintf("%v", event)
}
