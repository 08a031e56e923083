// Package tui is the terminal front-end for one product's comments. It
// only talks to the comments view and the favorites service.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/market-comments/internal/comments"
	"github.com/example/market-comments/internal/favorites"
	"github.com/example/market-comments/internal/platform/logging"
)

// Comments is the part of *comments.View the UI drives.
type Comments interface {
	ProductID() string
	Open(ctx context.Context) error
	Refresh(ctx context.Context) error
	Snapshot() comments.Snapshot
	Subscribe() (<-chan struct{}, func())
	Filter() comments.Filter
	SetFilter(ctx context.Context, f comments.Filter) error
	ExpandReplies(ctx context.Context, id string) error
	ReplyState(id string) comments.LoadState
	Submit(ctx context.Context, body string) (comments.Comment, error)
	Reply(ctx context.Context, parentID, body string) (comments.Comment, error)
	Edit(ctx context.Context, id, body string) (comments.Comment, error)
	Delete(ctx context.Context, id string) error
	CanModify(c comments.Comment) bool
	Pending(action comments.Action, target string) bool
}

// Favorites is the part of *favorites.Service the UI drives.
type Favorites interface {
	Load(ctx context.Context) error
	IsLiked(productID string) bool
	Products() []string
	Toggle(ctx context.Context, productID string) (bool, error)
}

// Messages
type (
	openedMsg  struct{ err error }
	changedMsg struct{}
	opDoneMsg  struct {
		action comments.Action
		err    error
	}
	expandedMsg struct {
		id  string
		err error
	}
	filterMsg struct{ err error }
	likedMsg  struct {
		liked bool
		err   error
	}
	searchMsg struct {
		query   string
		matches []favorites.Item
	}
)

type mode int

const (
	modeBrowse mode = iota
	modeCompose
	modeReply
	modeEdit
	modeConfirmDelete
	modeSearch
)

type Config struct {
	SearchDebounce time.Duration
}

type Model struct {
	ctx      context.Context
	comments Comments
	favs     Favorites
	log      *zap.Logger

	changes     <-chan struct{}
	unsubscribe func()
	searchCh    chan searchMsg
	search      *favorites.Search

	width   int
	height  int
	spinner spinner.Model
	input   textinput.Model

	mode      mode
	target    string
	cursor    int
	collapsed map[string]bool
	loading   bool
	status    string
	err       error

	searchQuery   string
	searchResults []favorites.Item
}

// NewModel builds the model. favs may be nil when likes are unavailable.
func NewModel(ctx context.Context, c Comments, favs Favorites, log *zap.Logger, cfg Config) Model {
	log = logging.OrNop(log)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	in := textinput.New()
	in.CharLimit = 2000
	in.Prompt = "> "

	changes, unsubscribe := c.Subscribe()
	searchCh := make(chan searchMsg, 8)
	debounce := cfg.SearchDebounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	search := favorites.NewSearch(debounce, func(q string, matches []favorites.Item) {
		select {
		case searchCh <- searchMsg{query: q, matches: matches}:
		default:
		}
	})

	return Model{
		ctx:         ctx,
		comments:    c,
		favs:        favs,
		log:         log,
		changes:     changes,
		unsubscribe: unsubscribe,
		searchCh:    searchCh,
		search:      search,
		spinner:     s,
		input:       in,
		collapsed:   make(map[string]bool),
		loading:     true,
		status:      "Loading comments...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.open,
		m.waitForChange,
		m.waitForSearch,
	)
}

// open loads the comments and the user's likes concurrently.
func (m Model) open() tea.Msg {
	var g errgroup.Group
	g.Go(func() error { return m.comments.Open(m.ctx) })
	if m.favs != nil {
		g.Go(func() error {
			if err := m.favs.Load(m.ctx); err != nil {
				m.log.Warn("tui: likes unavailable", zap.Error(err))
			}
			return nil
		})
	}
	return openedMsg{err: g.Wait()}
}

func (m Model) waitForChange() tea.Msg {
	if _, ok := <-m.changes; !ok {
		return nil
	}
	return changedMsg{}
}

func (m Model) waitForSearch() tea.Msg {
	return <-m.searchCh
}

func (m Model) rows() []row {
	return flatten(m.comments.Snapshot(), m.collapsed)
}

func (m Model) selected() (comments.Comment, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return comments.Comment{}, false
	}
	return rows[m.cursor].comment, true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.mode == modeBrowse {
			return m.updateBrowsing(msg)
		}
		return m.updateInput(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openedMsg:
		m.loading = false
		m.status = ""
		m.err = msg.err
		if msg.err != nil {
			m.status = describe(msg.err) + " (R to retry)"
		}
		return m, nil

	case changedMsg:
		m.clampCursor()
		return m, m.waitForChange

	case filterMsg:
		m.loading = false
		m.status = ""
		if msg.err != nil {
			m.status = describe(msg.err)
		}
		m.clampCursor()
		return m, nil

	case expandedMsg:
		if msg.err != nil {
			m.status = describe(msg.err)
		}
		return m, nil

	case opDoneMsg:
		return m.finishOp(msg)

	case likedMsg:
		switch {
		case msg.err != nil:
			m.status = describe(msg.err)
		case msg.liked:
			m.status = "Added to favorites"
		default:
			m.status = "Removed from favorites"
		}
		if m.favs != nil {
			m.search.SetItems(m.favoriteItems())
		}
		return m, nil

	case searchMsg:
		m.searchQuery = msg.query
		m.searchResults = msg.matches
		return m, m.waitForSearch
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.search.Stop()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()
	case "j", "down":
		m.cursor++
		m.clampCursor()
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "enter", " ":
		return m.toggleReplies()
	case "f":
		next := comments.FilterRelevant
		if m.comments.Filter() == comments.FilterRelevant {
			next = comments.FilterRecent
		}
		m.loading = true
		m.status = "Sorting by " + next.String() + "..."
		return m, m.setFilter(next)
	case "R":
		m.loading = true
		m.status = "Refreshing..."
		return m, m.refresh
	case "n":
		return m.startInput(modeCompose, m.comments.ProductID(), "")
	case "r":
		if c, ok := m.selected(); ok {
			return m.startInput(modeReply, c.ID, "")
		}
	case "e":
		if c, ok := m.selected(); ok && m.comments.CanModify(c) {
			return m.startInput(modeEdit, c.ID, c.Body)
		}
	case "d":
		if c, ok := m.selected(); ok && m.comments.CanModify(c) {
			m.mode = modeConfirmDelete
			m.target = c.ID
			m.status = "Delete this comment and its replies? (y/n)"
		}
	case "l":
		if m.favs != nil {
			return m, m.toggleLike
		}
	case "/":
		if m.favs != nil {
			m.search.SetItems(m.favoriteItems())
			return m.startInput(modeSearch, "", m.searchQuery)
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeConfirmDelete {
		switch msg.String() {
		case "y", "Y":
			id := m.target
			if m.comments.Pending(comments.ActionDelete, id) {
				return m, nil
			}
			m.mode = modeBrowse
			m.status = "Deleting..."
			return m, func() tea.Msg {
				return opDoneMsg{action: comments.ActionDelete, err: m.comments.Delete(m.ctx, id)}
			}
		default:
			m.mode = modeBrowse
			m.target = ""
			m.status = ""
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.target = ""
		m.input.Blur()
		m.input.SetValue("")
		m.status = ""
		return m, nil
	case tea.KeyEnter:
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.mode == modeSearch {
		m.search.Query(m.input.Value())
	}
	return m, cmd
}

func (m Model) startInput(md mode, target, value string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.target = target
	m.status = ""
	m.input.SetValue(value)
	m.input.CursorEnd()
	switch md {
	case modeCompose:
		m.input.Placeholder = "Write a comment"
	case modeReply:
		m.input.Placeholder = "Write a reply"
	case modeEdit:
		m.input.Placeholder = "Edit your comment"
	case modeSearch:
		m.input.Placeholder = "Search favorites"
	}
	cmd := m.input.Focus()
	return m, cmd
}

// submitInput sends the form. The input keeps its text until the server
// accepts it, so a failure can be retried without retyping.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	body := m.input.Value()
	target := m.target

	var action comments.Action
	var run func() error
	switch m.mode {
	case modeSearch:
		m.search.Flush()
		return m, nil
	case modeCompose:
		action = comments.ActionCreate
		run = func() error { _, err := m.comments.Submit(m.ctx, body); return err }
	case modeReply:
		action = comments.ActionReply
		run = func() error { _, err := m.comments.Reply(m.ctx, target, body); return err }
	case modeEdit:
		action = comments.ActionEdit
		run = func() error { _, err := m.comments.Edit(m.ctx, target, body); return err }
	default:
		return m, nil
	}
	if strings.TrimSpace(body) == "" {
		m.status = "Comment must not be empty"
		return m, nil
	}
	if m.comments.Pending(action, target) {
		return m, nil
	}
	m.status = "Sending..."
	return m, func() tea.Msg { return opDoneMsg{action: action, err: run()} }
}

func (m Model) finishOp(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.status = describe(msg.err)
		return m, nil
	}
	switch msg.action {
	case comments.ActionCreate:
		m.cursor = 0
		m.status = "Comment posted"
	case comments.ActionReply:
		delete(m.collapsed, m.target)
		m.status = "Reply posted"
	case comments.ActionEdit:
		m.status = "Comment updated"
	case comments.ActionDelete:
		m.status = "Comment deleted"
	}
	if m.mode != modeBrowse && m.mode != modeSearch {
		m.mode = modeBrowse
		m.target = ""
		m.input.Blur()
		m.input.SetValue("")
	}
	m.clampCursor()
	return m, nil
}

func (m Model) toggleReplies() (tea.Model, tea.Cmd) {
	c, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch m.comments.ReplyState(c.ID) {
	case comments.LoadLoading:
		return m, nil
	case comments.LoadLoaded:
		m.collapsed[c.ID] = !m.collapsed[c.ID]
		return m, nil
	}
	id := c.ID
	return m, func() tea.Msg {
		return expandedMsg{id: id, err: m.comments.ExpandReplies(m.ctx, id)}
	}
}

func (m Model) setFilter(f comments.Filter) tea.Cmd {
	return func() tea.Msg { return filterMsg{err: m.comments.SetFilter(m.ctx, f)} }
}

func (m Model) refresh() tea.Msg {
	return filterMsg{err: m.comments.Refresh(m.ctx)}
}

func (m Model) toggleLike() tea.Msg {
	liked, err := m.favs.Toggle(m.ctx, m.comments.ProductID())
	return likedMsg{liked: liked, err: err}
}

func (m Model) favoriteItems() []favorites.Item {
	ids := m.favs.Products()
	items := make([]favorites.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, favorites.Item{ProductID: id, Title: "Product " + id})
	}
	return items
}

func (m *Model) clampCursor() {
	n := len(m.rows())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, comments.ErrValidation):
		return "Comment must not be empty"
	case errors.Is(err, comments.ErrUnauthorized):
		return "Could not complete: you are not allowed to do that"
	case errors.Is(err, comments.ErrViewClosed), errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, comments.ErrServer):
		return "Something went wrong, please try again"
	}
	return fmt.Sprintf("Error: %v", err)
}
