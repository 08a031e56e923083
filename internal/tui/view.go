package tui

import (
	"fmt"
	"strings"
)

func (m Model) View() string {
	var b strings.Builder
	padding := " "

	title := fmt.Sprintf("Comments · product %s · %s", m.comments.ProductID(), m.comments.Filter())
	b.WriteString(padding + titleStyle.Render(title))
	if m.favs != nil && m.favs.IsLiked(m.comments.ProductID()) {
		b.WriteString(" " + heartStyle.Render("♥"))
	}
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(padding + m.spinner.View() + " " + m.status + "\n\n")
	} else if m.status != "" {
		style := navStyle
		if m.err != nil {
			style = errorStyle
		}
		b.WriteString(padding + style.Render(m.status) + "\n\n")
	}

	b.WriteString(m.renderTree())

	switch m.mode {
	case modeCompose, modeReply, modeEdit:
		b.WriteString("\n" + padding + m.input.View() + "\n")
		b.WriteString(padding + navStyle.Render("enter: send  esc: cancel") + "\n")
	case modeSearch:
		b.WriteString("\n" + m.renderSearch(padding))
	}

	if m.mode == modeBrowse {
		b.WriteString("\n" + padding + navStyle.Render(
			"j/k: move  enter: replies  f: sort  n: comment  r: reply  e: edit  d: delete  l: like  /: favorites  q: quit") + "\n")
	}
	return b.String()
}

func (m Model) renderTree() string {
	snap := m.comments.Snapshot()
	rows := flatten(snap, m.collapsed)
	if len(rows) == 0 {
		if m.loading {
			return ""
		}
		return " " + metaStyle.Render("No comments yet. Press n to write one.") + "\n"
	}

	r := rowRenderer{
		snap:      snap,
		width:     m.width,
		state:     m.comments.ReplyState,
		canModify: m.comments.CanModify,
		collapsed: m.collapsed,
	}
	if r.width <= 0 {
		r.width = 80
	}

	start, end := m.window(len(rows))
	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(r.render(rows[i], i == m.cursor))
	}
	return b.String()
}

// window picks the rows to draw so the cursor stays on screen. Each
// comment takes roughly three lines.
func (m Model) window(n int) (int, int) {
	if m.height <= 0 {
		return 0, n
	}
	visible := max((m.height-8)/3, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	return start, min(start+visible, n)
}

func (m Model) renderSearch(padding string) string {
	var b strings.Builder
	b.WriteString(padding + m.input.View() + "\n")
	if m.searchQuery != "" || len(m.searchResults) > 0 {
		if len(m.searchResults) == 0 {
			b.WriteString(padding + metaStyle.Render("No favorites match") + "\n")
		}
		for _, it := range m.searchResults {
			b.WriteString(padding + heartStyle.Render("♥ ") + it.Title + "\n")
		}
	}
	b.WriteString(padding + navStyle.Render("type to search  esc: close") + "\n")
	return b.String()
}
