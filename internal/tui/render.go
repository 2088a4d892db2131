package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/blinky/internal/diff"
	"github.com/sprite-ai/blinky/internal/model"
)

func (m Model) renderList(width, height int) string {
	var b strings.Builder

	if len(m.notes) == 0 {
		b.WriteString(pathStyle.Render("All quiet. 👻"))
	}

	for i, n := range m.notes {
		line := fmt.Sprintf("%s %s", badge(n), truncate(n.title, width-14))
		if n.kind == kindAlert && n.sources > 1 {
			line += fmt.Sprintf(" (%d)", n.sources)
		}

		style := itemStyle
		if i == m.selected {
			style = itemSelectedStyle
		}
		b.WriteString(style.Width(width - 4).Render(line))
		if i < len(m.notes)-1 {
			b.WriteByte('\n')
		}
	}

	return listStyle.Width(width).Height(height - 2).Render(b.String())
}

func badge(n notification) string {
	switch n.kind {
	case kindOffline:
		return offlineStyle.Render("OFFLINE")
	case kindSafe:
		return levelSafeStyle.Render("SAFE   ")
	}
	return levelStyle(n.level).Render(fmt.Sprintf("%-7s", levelLabel(n.level)))
}

func (m Model) renderDetail(width, height int) string {
	innerHeight := height - 2
	if len(m.notes) == 0 {
		return detailStyle.Width(width).Height(innerHeight).Render("No notifications")
	}

	n := m.notes[m.selected]
	innerWidth := width - 4

	var b strings.Builder
	b.WriteString(detailHeaderStyle.Render(n.title))
	b.WriteByte('\n')

	if n.kind == kindAlert || n.kind == kindAnnotation {
		fmt.Fprintf(&b, "%s  mood %s  %s\n",
			levelStyle(n.level).Render(n.level.String()),
			n.mood,
			pathStyle.Render(n.at.Format("15:04:05")),
		)
	}
	if n.path != "" {
		b.WriteString(pathStyle.Render(truncate(n.path, innerWidth)))
		b.WriteByte('\n')
	}

	writeSection(&b, "Messages", n.excerpts, excerptStyle, innerWidth)
	writeSection(&b, "Findings", n.findings, findingStyle, innerWidth)
	writeSection(&b, "What to do", n.suggestions, suggestionStyle, innerWidth)

	if len(n.snippet) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Element"))
		b.WriteByte('\n')
		for _, hl := range n.snippet {
			b.WriteString(renderTokens(hl, innerWidth))
			b.WriteByte('\n')
		}
	}

	return detailStyle.Width(width).Height(innerHeight).Render(strings.TrimRight(b.String(), "\n"))
}

func writeSection(b *strings.Builder, title string, items []string, style lipgloss.Style, width int) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(title))
	b.WriteByte('\n')
	for _, it := range items {
		b.WriteString(style.Render("• " + truncate(it, width-2)))
		b.WriteByte('\n')
	}
}

// renderTokens colors one highlighted line, cutting it at width.
func renderTokens(hl diff.HighlightedLine, width int) string {
	var b strings.Builder
	used := 0
	for _, tok := range hl.Tokens {
		text := tok.Text
		if used+len([]rune(text)) > width {
			text = truncate(text, width-used)
		}
		used += len([]rune(text))
		if tok.Color != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(text))
		} else {
			b.WriteString(text)
		}
		if used >= width {
			break
		}
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	status := statusOnlineStyle.Render("● online")
	if !m.online {
		status = statusOfflineStyle.Render("● offline")
	}

	left := " " + m.title
	right := fmt.Sprintf("alerts %d  high %d  flagged %d  ? help ", m.alerts, m.highSeen, m.flagged)

	gap := m.width - lipgloss.Width(status) - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}

	return statusBarStyle.Width(m.width).Render(status + left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(helpHeaderStyle.Render("blinky: Keyboard Shortcuts"))
	b.WriteString("\n")

	for _, kb := range []struct{ key, desc string }{
		{keys.Up.Help().Key, "Previous notification"},
		{keys.Down.Help().Key, "Next notification"},
		{keys.Dismiss.Help().Key, "Dismiss selected"},
		{keys.Clear.Help().Key, "Clear all"},
		{keys.Help.Help().Key, "Toggle this help"},
		{keys.Quit.Help().Key, "Quit"},
	} {
		fmt.Fprintf(&b, "  %s  %s\n", helpKeyStyle.Width(12).Render(kb.key), kb.desc)
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))
	return b.String()
}

// levelLabel is the short band name used in the list, SAFE for none.
func levelLabel(l model.Level) string {
	if l == model.LevelNone {
		return "SAFE"
	}
	return l.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 {
		return ""
	}
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
