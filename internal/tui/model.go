// Package tui is the terminal view of the post feed. It renders the
// snapshots published by a feed.Assembler and turns key presses into
// assembler commands.
package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/feed"
	"github.com/blackmichael/postboard/internal/stream"
)

// Feed is the part of feed.Assembler the view drives.
type Feed interface {
	State() feed.State
	Subscribe() *stream.Subscription[feed.State]
	ChangePage(ev feed.PageEvent) error
	Delete(postID string) error
	Refresh() error
	ToggleImage(postID string) error
}

// Notices queues one-off messages for the view. It implements
// feed.Notifier; messages are dropped while the queue is full.
type Notices struct {
	c chan string
}

// NewNotices creates a queue holding up to size unread messages.
func NewNotices(size int) *Notices {
	if size < 1 {
		size = 1
	}
	return &Notices{c: make(chan string, size)}
}

func (n *Notices) Notify(message string) {
	select {
	case n.c <- message:
	default:
	}
}

type stateMsg struct{}

type feedClosedMsg struct{}

type noticeMsg string

// Model is the bubbletea model of the feed view.
type Model struct {
	feed    Feed
	states  *stream.Subscription[feed.State]
	notices *Notices

	state  feed.State
	cursor int
	notice string
	err    error

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	showHelp bool
	width    int
	height   int
}

// NewModel creates a Model over f. The subscription to f is taken here so
// no snapshot published before the program starts is missed. notices may
// be nil.
func NewModel(f Feed, notices *Notices) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		feed:    f,
		states:  f.Subscribe(),
		notices: notices,
		state:   f.State(),
		keys:    defaultKeyMap,
		help:    help.New(),
		spinner: s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.states), waitForNotice(m.notices), m.spinner.Tick)
}

// waitForState blocks until the feed publishes. The snapshot itself is
// read back through Feed.State so a slow view always renders the latest.
func waitForState(sub *stream.Subscription[feed.State]) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-sub.C(); !ok {
			return feedClosedMsg{}
		}
		return stateMsg{}
	}
}

func waitForNotice(n *Notices) tea.Cmd {
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		return noticeMsg(<-n.c)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.state = m.feed.State()
		m.clampCursor()
		return m, waitForState(m.states)

	case feedClosedMsg:
		m.states.Unsubscribe()
		return m, tea.Quit

	case noticeMsg:
		m.notice = string(msg)
		return m, waitForNotice(m.notices)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.states.Unsubscribe()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.state.Page.Records)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.NextPage):
		if ev, ok := nextPage(m.state); ok {
			m.err = m.feed.ChangePage(ev)
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.PrevPage):
		if ev, ok := prevPage(m.state); ok {
			m.err = m.feed.ChangePage(ev)
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.Bigger):
		if ev, ok := resizePage(m.state, 1); ok {
			m.err = m.feed.ChangePage(ev)
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.Smaller):
		if ev, ok := resizePage(m.state, -1); ok {
			m.err = m.feed.ChangePage(ev)
			m.cursor = 0
		}
	case key.Matches(msg, m.keys.Refresh):
		m.err = m.feed.Refresh()
	case key.Matches(msg, m.keys.Image):
		if p, ok := m.selected(); ok && p.ImageURL != "" {
			m.err = m.feed.ToggleImage(p.ID)
		}
	case key.Matches(msg, m.keys.Delete):
		p, ok := m.selected()
		if !ok {
			break
		}
		if !ownsPost(m.state.Viewer, p.Post) {
			m.notice = "You can only delete your own posts"
			break
		}
		m.err = m.feed.Delete(p.ID)
	}

	if errors.Is(m.err, feed.ErrClosed) {
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) selected() (feed.EnrichedPost, bool) {
	records := m.state.Page.Records
	if m.cursor < 0 || m.cursor >= len(records) {
		return feed.EnrichedPost{}, false
	}
	return records[m.cursor], true
}

func (m *Model) clampCursor() {
	if n := len(m.state.Page.Records); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func ownsPost(v feed.Viewer, p domain.Post) bool {
	return v.Authenticated && v.Identity != nil && v.Identity.ID == p.Creator
}

// pageCount is the number of pages needed for total posts, at least one.
func pageCount(total, size int) int {
	if size < 1 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func nextPage(s feed.State) (feed.PageEvent, bool) {
	req := s.Request
	if req.PageIndex >= pageCount(s.Page.TotalCount, req.PageSize) {
		return feed.PageEvent{}, false
	}
	return feed.PageEvent{PageIndex: req.PageIndex, PageSize: req.PageSize}, true
}

func prevPage(s feed.State) (feed.PageEvent, bool) {
	req := s.Request
	if req.PageIndex <= 1 {
		return feed.PageEvent{}, false
	}
	return feed.PageEvent{PageIndex: req.PageIndex - 2, PageSize: req.PageSize}, true
}

// resizePage moves to the next larger (step > 0) or smaller page size in
// domain.PageSizeOptions and picks the page that keeps the first visible
// post in view.
func resizePage(s feed.State, step int) (feed.PageEvent, bool) {
	req := s.Request

	size := 0
	for _, opt := range domain.PageSizeOptions {
		if step > 0 && opt > req.PageSize {
			size = opt
			break
		}
		if step < 0 && opt < req.PageSize {
			size = opt
		}
	}
	if size == 0 {
		return feed.PageEvent{}, false
	}

	first := (req.PageIndex - 1) * req.PageSize
	return feed.PageEvent{PageIndex: first / size, PageSize: size}, true
}
