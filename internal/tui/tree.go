package tui

import (
	"fmt"
	"strings"

	"github.com/example/market-comments/internal/comments"
)

// row is one visible comment in display order.
type row struct {
	comment comments.Comment
	depth   int
}

// flatten lists the visible comments. Replies of collapsed comments are
// hidden even when loaded.
func flatten(snap comments.Snapshot, collapsed map[string]bool) []row {
	var rows []row
	snap.Walk(func(c comments.Comment, depth int) bool {
		rows = append(rows, row{comment: c, depth: depth})
		return !collapsed[c.ID]
	})
	return rows
}

// replyLabel is the reply affordance under a comment, or "" when there
// is nothing to offer.
func replyLabel(snap comments.Snapshot, id string, state comments.LoadState, collapsed bool) string {
	total := snap.ReplyTotal(id)
	switch state {
	case comments.LoadLoading:
		return "loading replies..."
	case comments.LoadFailed:
		return "could not load replies, enter to retry"
	case comments.LoadLoaded:
		if total == 0 {
			return ""
		}
		if collapsed {
			return fmt.Sprintf("▸ show %s", plural(total, "reply", "replies"))
		}
		return fmt.Sprintf("▾ hide %s", plural(total, "reply", "replies"))
	}
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("▸ %s", plural(total, "reply", "replies"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

type rowRenderer struct {
	snap      comments.Snapshot
	width     int
	state     func(id string) comments.LoadState
	canModify func(c comments.Comment) bool
	collapsed map[string]bool
}

func (r rowRenderer) render(rw row, selected bool) string {
	c := rw.comment
	indent := strings.Repeat("  ", rw.depth)
	marker := "  "
	if selected {
		marker = selectedStyle.Render("› ")
	}

	var b strings.Builder
	header := authorStyle.Render("@" + displayHandle(c.AuthorHandle))
	if !c.CreatedAt.IsZero() {
		header += " " + metaStyle.Render(c.CreatedAt.Local().Format("Jan 2 15:04"))
	}
	if c.Edited() {
		header += " " + metaStyle.Render("(edited)")
	}
	if r.canModify != nil && r.canModify(c) {
		header += " " + metaStyle.Render("· yours")
	}
	b.WriteString(marker + indent + header + "\n")

	width := r.width - len(indent) - 4
	if width < 10 {
		width = 10
	}
	for _, line := range wrap(c.Body, width) {
		b.WriteString("  " + indent + "  " + bodyStyle.Render(line) + "\n")
	}

	state := comments.LoadIdle
	if r.state != nil {
		state = r.state(c.ID)
	}
	if label := replyLabel(r.snap, c.ID, state, r.collapsed[c.ID]); label != "" {
		style := repliesStyle
		if state == comments.LoadFailed {
			style = errorStyle
		}
		b.WriteString("  " + indent + "  " + style.Render(label) + "\n")
	}
	return b.String()
}

func displayHandle(h string) string {
	if h == "" {
		return "anonymous"
	}
	return h
}

// wrap breaks s into lines of at most width runes on word boundaries.
func wrap(s string, width int) []string {
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, w := range words {
			switch {
			case line == "":
				line = w
			case len([]rune(line))+1+len([]rune(w)) > width:
				lines = append(lines, line)
				line = w
			default:
				line += " " + w
			}
		}
		lines = append(lines, line)
	}
	return lines
}
