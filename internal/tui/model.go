// Package tui is the interactive terminal feed.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/pders01/synfeed/internal/app"
	"github.com/pders01/synfeed/internal/feed"
	"github.com/pders01/synfeed/internal/format"
	"github.com/pders01/synfeed/internal/interaction"
	"github.com/pders01/synfeed/internal/media"
	"github.com/pders01/synfeed/internal/model"
	"github.com/pders01/synfeed/internal/visibility"
)

const (
	kindLike     = "like"
	kindFavorite = "favorite"
)

type loadedMsg struct {
	err error
}

// rowMsg carries a bound post row. It is applied only while its token is
// still live.
type rowMsg struct {
	tok  feed.Token
	item feed.PostItem
}

type toggledMsg struct {
	slot   int
	kind   string
	toggle interaction.Toggle
	err    error
}

// Model is the feed screen. Each visible post owns a row slot; rows are
// bound in the background and applied as they arrive.
type Model struct {
	ctx      context.Context
	app      *app.App
	binder   *feed.Binder
	rows     chan rowMsg
	launcher *media.Launcher

	spinner spinner.Model
	styles  Styles

	renderer      *glamour.TermRenderer
	rendererWidth int
	rendered      map[string]string

	strip    feed.StoryStripItem
	composer feed.ComposerItem
	posts    []model.Post
	items    map[int]feed.PostItem
	shimmer  bool
	loading  bool

	cursor int
	width  int
	height int

	status     string
	statusKind StatusKind
}

func New(ctx context.Context, a *app.App) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		ctx:      ctx,
		app:      a,
		binder:   feed.NewBinder(a.Presenter),
		launcher: media.NewLauncher(a.Config.UI.Opener),
		rows:     make(chan rowMsg, 64),
		spinner:  sp,
		styles:   NewStyles(a.Config.UI.Colors),
		rendered: make(map[string]string),
		items:    make(map[int]feed.PostItem),
		shimmer:  true,
		width:    80,
		status:   MsgLoading,
	}
	m.spinner.Style = m.styles.Muted
	return m
}

func (m *Model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load(), m.waitForRow())
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.app.Refresh(m.ctx)}
	}
}

// waitForRow delivers the next bound row to the program.
func (m *Model) waitForRow() tea.Cmd {
	return func() tea.Msg {
		select {
		case r := <-m.rows:
			return r
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) deliver(tok feed.Token, it feed.PostItem) {
	select {
	case m.rows <- rowMsg{tok: tok, item: it}:
	case <-m.ctx.Done():
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.shimmer && !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.applyLoad(msg.err)
		return m, nil

	case rowMsg:
		if m.binder.Live(msg.tok) {
			m.items[msg.tok.Slot] = msg.item
		}
		return m, m.waitForRow()

	case toggledMsg:
		m.applyToggle(msg)
		return m, nil
	}
	return m, nil
}

func (m *Model) applyLoad(err error) {
	m.loading = false
	state := m.app.Loader.State()
	m.shimmer = state.Shimmer
	m.strip = m.app.Presenter.StoryStrip(m.ctx, state.Stories)
	m.composer = m.app.Presenter.Composer(m.ctx)

	if err != nil {
		m.setStatus(err.Error(), StatusError)
		return
	}

	viewer, _ := m.app.Viewer.CurrentUserID()
	m.posts = m.posts[:0]
	for _, p := range state.Posts {
		if visibility.Visible(p, viewer) {
			m.posts = append(m.posts, p)
		}
	}
	for slot := range m.items {
		if slot >= len(m.posts) || m.items[slot].Post.ID != m.posts[slot].ID {
			delete(m.items, slot)
		}
	}
	for slot, p := range m.posts {
		m.binder.Bind(m.ctx, slot, p, m.deliver)
	}
	if m.cursor >= len(m.posts) {
		m.cursor = max(len(m.posts)-1, 0)
	}

	if len(m.posts) == 0 {
		m.setStatus(MsgNothingHere, StatusInfo)
	} else {
		m.setStatus(MsgLoaded(len(m.posts)), StatusSuccess)
	}
}

func (m *Model) applyToggle(msg toggledMsg) {
	if msg.err != nil {
		m.setStatus(msg.err.Error(), StatusError)
		return
	}
	// an in-flight bind would carry counts from before the toggle
	tok := m.binder.Acquire(msg.slot)
	it, ok := m.items[msg.slot]
	if ok && it.Post.ID == msg.toggle.PostID {
		switch msg.kind {
		case kindLike:
			it.Liked = msg.toggle.Active
			it.LikeCount = msg.toggle.Count
			it.Likes = format.ShortCount(msg.toggle.Count)
		case kindFavorite:
			it.Favorited = msg.toggle.Active
		}
		m.items[tok.Slot] = it
	}
	m.setStatus(MsgToggled(msg.kind, msg.toggle.Active), StatusSuccess)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.posts)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.setStatus(MsgRefreshing, StatusInfo)
		return m, tea.Batch(m.spinner.Tick, m.load())
	case "l":
		return m, m.toggle(kindLike)
	case "f":
		return m, m.toggle(kindFavorite)
	case "o":
		m.open()
	}
	return m, nil
}

func (m *Model) toggle(kind string) tea.Cmd {
	if len(m.posts) == 0 {
		return nil
	}
	if _, ok := m.app.Viewer.CurrentUserID(); !ok {
		m.setStatus(MsgSignedOut, StatusWarn)
		return nil
	}
	slot := m.cursor
	postID := m.posts[slot].ID
	return func() tea.Msg {
		var (
			t   interaction.Toggle
			err error
		)
		if kind == kindLike {
			t, err = m.app.ToggleLike(m.ctx, postID)
		} else {
			t, err = m.app.ToggleFavorite(m.ctx, postID)
		}
		return toggledMsg{slot: slot, kind: kind, toggle: t, err: err}
	}
}

// open launches the selected post's image or link.
func (m *Model) open() {
	if len(m.posts) == 0 {
		return
	}
	kind, err := m.launcher.OpenPost(m.posts[m.cursor])
	switch {
	case errors.Is(err, media.ErrNothingToOpen):
		m.setStatus(MsgNothingToOpen, StatusWarn)
	case err != nil:
		m.setStatus(err.Error(), StatusError)
	default:
		m.setStatus(MsgOpened(kind), StatusInfo)
	}
}

func (m *Model) setStatus(s string, kind StatusKind) {
	m.status = s
	m.statusKind = kind
}

// Wait blocks until background row binds have finished.
func (m *Model) Wait() {
	m.binder.Wait()
}
