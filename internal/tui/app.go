package tui

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/sensiblelive/internal/applog"
	"github.com/lotas/sensiblelive/internal/config"
	"github.com/lotas/sensiblelive/internal/events"
	"github.com/lotas/sensiblelive/internal/invalidate"
	"github.com/lotas/sensiblelive/internal/nav"
	"github.com/lotas/sensiblelive/internal/session"
	"github.com/lotas/sensiblelive/internal/storage"
	"github.com/lotas/sensiblelive/internal/suggest"
	"github.com/lotas/sensiblelive/internal/transport"
	"github.com/lotas/sensiblelive/internal/types"
	"github.com/lotas/sensiblelive/internal/view"
)

// BodyWidthPct is the percentage of terminal width used for the page body.
const BodyWidthPct = 65

const (
	addNoticeSelector = "#add-notif"
	emptyLinkMessage  = "Link must not be empty"
	unknownError      = "Unknown error"
	confirmAbort      = "Abort the download? Press x again to confirm"
)

// Backend is the server API the UI needs. transport.Client implements it.
type Backend interface {
	nav.Fetcher
	suggest.Getter
	PostJSON(ctx context.Context, path string, payload any, dest any) transport.Result
	SameOrigin(link string) (string, bool)
	Resolve(path string) string
}

type focusTarget int

const (
	focusPage focusTarget = iota
	focusSearch
	focusAdd
)

// Options configures NewModel. Stream and DB are optional.
type Options struct {
	Backend Backend
	Stream  *events.Client
	DB      *sql.DB
	Config  config.Config
	Start   string
}

// --- Model ---

type Model struct {
	ctx     context.Context
	backend Backend
	stream  *events.Client
	events  <-chan types.ChangeEvent
	db      *sql.DB
	cfg     config.Config
	base    *url.URL
	start   string

	state  *session.State
	engine *nav.Engine
	inval  *invalidate.Controller
	search *suggest.Controller

	// UI state
	searchInput textinput.Model
	addInput    textinput.Model
	body        viewport.Model
	focus       focusTarget
	links       []view.Link
	cursor      int
	notice      string
	noticeErr   bool
	loading     bool
	abortArmed  bool
	width       int
	height      int
}

func NewModel(ctx context.Context, opts Options) Model {
	start := opts.Start
	if start == "" {
		start = "/"
	}
	st := session.New()
	page := view.NewPage(start, nil)
	engine := nav.New(opts.Backend, page, st, opts.Config.Regions)
	inval := invalidate.New(page, st)

	// Order matters: images and the indicator are patched before the
	// pending refresh is settled and the visit is journaled.
	engine.OnChange(func(c nav.Change) { st.Changed.Apply(c.Page) })
	engine.OnChange(func(c nav.Change) { st.Progress.Apply(c.Page) })
	engine.OnChange(func(nav.Change) { inval.Settle() })
	engine.OnFailure(func(nav.Request, transport.Result) { inval.Settle() })
	if opts.DB != nil {
		db := opts.DB
		engine.OnChange(func(c nav.Change) {
			v := storage.Visit{URL: c.Page.Location(), Title: c.Page.Title(), Status: c.Status}
			if err := storage.RecordVisit(db, v); err != nil {
				applog.Error("journal.visit", err)
			}
		})
		engine.OnFailure(func(req nav.Request, res transport.Result) {
			if err := storage.RecordVisit(db, storage.Visit{URL: req.URL, Status: res.Status}); err != nil {
				applog.Error("journal.visit", err)
			}
		})
	}

	si := textinput.New()
	si.Prompt = "/ "
	si.Placeholder = "Search songs"
	ai := textinput.New()
	ai.Prompt = "+ "
	ai.Placeholder = "Link or search term to add"

	m := Model{
		ctx:         ctx,
		backend:     opts.Backend,
		stream:      opts.Stream,
		db:          opts.DB,
		cfg:         opts.Config,
		start:       start,
		state:       st,
		engine:      engine,
		inval:       inval,
		search:      suggest.New(),
		searchInput: si,
		addInput:    ai,
		body:        viewport.New(0, 0),
		loading:     true,
	}
	if base, err := url.Parse(opts.Backend.Resolve("/")); err == nil {
		m.base = base
	}
	if opts.Stream != nil {
		m.events = opts.Stream.Subscribe(16)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	req := m.engine.Begin(m.start, nav.Options{})
	return tea.Batch(
		fetchPage(m.ctx, m.engine, req),
		listenEvents(m.events),
		runStream(m.ctx, m.stream),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.body.Width = m.width*BodyWidthPct/100 - 2
		m.body.Height = m.paneHeight()
		m.searchInput.Width = m.width - 4
		m.addInput.Width = m.width - 4
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		switch m.focus {
		case focusSearch:
			return m.updateSearch(msg)
		case focusAdd:
			return m.updateAdd(msg)
		}
		return m.updatePage(msg)

	case navResultMsg:
		req := msg.result.Request
		applied, err := m.engine.Complete(msg.result)
		if req.Seq == m.engine.Latest() {
			m.loading = false
		}
		if err != nil {
			text := cleanNotice(msg.result.Res.Message)
			if text == "" {
				text = err.Error()
			}
			m.setError(text)
			return m, nil
		}
		if !applied {
			return m, nil
		}
		m.notice = ""
		return m, m.afterNavigation(req)

	case eventMsg:
		cmds := []tea.Cmd{listenEvents(m.events)}
		m.journalEvent(msg.ev)
		if msg.ev.Kind == types.KindProgressEnded && msg.ev.Error != "" {
			m.setError(cleanNotice(msg.ev.Error))
		}
		switch action := m.inval.Handle(msg.ev); {
		case action.NeedsReload():
			cmds = append(cmds, m.navigate(m.engine.Page().Location(), nav.Options{Reload: true}))
		case action == invalidate.ActionRemove || action == invalidate.ActionPatch:
			m.refresh(true)
		}
		return m, tea.Batch(cmds...)

	case eventsClosedMsg:
		return m, nil

	case streamStoppedMsg:
		if msg.err != nil && m.ctx.Err() == nil {
			applog.Error("events.stopped", msg.err)
		}
		return m, nil

	case debounceMsg:
		if !m.search.Due(msg.query) {
			return m, nil
		}
		return m, lookup(m.ctx, m.backend, msg.query)

	case suggestMsg:
		if !msg.res.OK() {
			applog.Error("suggest.lookup", msg.res.Err(), "query", msg.resp.Query)
			return m, nil
		}
		m.search.Accept(msg.resp)
		return m, nil

	case blurMsg:
		m.search.BlurElapsed(msg.gen)
		return m, nil

	case mutationMsg:
		if msg.res.OK() {
			applog.Info("tui.mutation", "path", msg.path, "next", msg.next)
			m.addInput.SetValue("")
			return m, m.navigate(msg.next, nav.Options{})
		}
		text := cleanNotice(msg.res.Message)
		if text == "" {
			text = unknownError
		}
		m.engine.Page().SetText(addNoticeSelector, text)
		m.setError(text)
		m.refresh(true)
		return m, nil
	}

	// Cursor blink and other input internals.
	var cmd tea.Cmd
	switch m.focus {
	case focusSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case focusAdd:
		m.addInput, cmd = m.addInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updatePage(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := m.engine.Page()
	armed := m.abortArmed
	m.abortArmed = false
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		return m, m.focusSearchBar()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.links)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor >= len(m.links) {
			return m, nil
		}
		href := m.links[m.cursor].Href
		path, ok := m.backend.SameOrigin(href)
		if !ok {
			m.setNotice("external link: " + href)
			return m, nil
		}
		return m, m.navigate(path, nav.Options{})
	case "n":
		if page.Route().IsAddPage() {
			return m, nil
		}
		return m, m.navigate("/add", nav.Options{})
	case "a":
		if !page.Route().IsAddPage() {
			return m, nil
		}
		m.focus = focusAdd
		m.addInput.SetValue(page.Value(invalidate.AddInputSelector))
		m.addInput.CursorEnd()
		page.Focus(invalidate.AddInputSelector)
		cmd := m.addInput.Focus()
		return m, cmd
	case "x":
		if !page.Route().IsAddPage() {
			return m, nil
		}
		if !armed {
			m.abortArmed = true
			m.setNotice(confirmAbort)
			return m, nil
		}
		m.notice = ""
		return m, postMutation(m.ctx, m.backend, abortPath, struct{}{}, "/add")
	case "backspace":
		m.syncScroll()
		req, ok := m.engine.BeginBack()
		if !ok {
			return m, nil
		}
		m.loading = true
		return m, fetchPage(m.ctx, m.engine, req)
	case "r":
		return m, m.navigate(page.Location(), nav.Options{Reload: true})
	case "esc":
		if page.Route().Path == "/" {
			return m, nil
		}
		return m, m.navigate("/", nav.Options{})
	case "pgdown", " ", "ctrl+d":
		m.body.SetYOffset(m.body.YOffset + max(m.body.Height, 1))
		m.syncScroll()
	case "pgup", "ctrl+u":
		m.body.SetYOffset(m.body.YOffset - max(m.body.Height, 1))
		m.syncScroll()
	case "g", "home":
		m.body.GotoTop()
		m.syncScroll()
	case "G", "end":
		m.body.GotoBottom()
		m.syncScroll()
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		return m, m.blurSearch()
	case "up":
		m.search.Up()
		return m, nil
	case "down":
		m.search.Down()
		return m, nil
	case "enter":
		out := m.search.Enter()
		switch out.Kind {
		case suggest.OutcomeFollow:
			blur := m.blurSearch()
			return m, tea.Batch(blur, m.navigate(out.URL, nav.Options{}))
		case suggest.OutcomeSubmit:
			return m, m.navigate(out.URL, nav.Options{FocusSearch: true})
		}
		return m, nil
	}

	before := m.searchInput.Value()
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	after := m.searchInput.Value()
	if after == before {
		return m, cmd
	}
	if query, ok := m.search.Input(after); ok {
		return m, tea.Batch(cmd, debounce(query, m.cfg.Debounce))
	}
	return m, cmd
}

func (m Model) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := m.engine.Page()
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.addInput.Blur()
		m.focus = focusPage
		page.Focus("")
		return m, nil
	case "enter":
		link := m.addInput.Value()
		if strings.TrimSpace(link) == "" {
			page.SetText(addNoticeSelector, emptyLinkMessage)
			m.setError(emptyLinkMessage)
			m.refresh(true)
			return m, nil
		}
		m.addInput.Blur()
		m.focus = focusPage
		page.Focus("")
		return m, postMutation(m.ctx, m.backend, addPath, map[string]string{"searchTerm": link}, "/")
	}

	var cmd tea.Cmd
	m.addInput, cmd = m.addInput.Update(msg)
	page.SetValue(invalidate.AddInputSelector, m.addInput.Value())
	return m, cmd
}

// navigate starts a navigation on the loop and returns the fetch command.
func (m *Model) navigate(url string, opts nav.Options) tea.Cmd {
	m.syncScroll()
	req := m.engine.Begin(url, opts)
	m.loading = true
	return fetchPage(m.ctx, m.engine, req)
}

func (m *Model) afterNavigation(req nav.Request) tea.Cmd {
	page := m.engine.Page()
	if page.Route().IsAddPage() && m.addInput.Value() != "" {
		page.SetValue(invalidate.AddInputSelector, m.addInput.Value())
	}
	m.refresh(req.Options.Reload)

	switch {
	case page.Focused() == nav.SearchSelector:
		m.focus = focusSearch
		m.search.Focus()
		m.searchInput.CursorEnd()
		return m.searchInput.Focus()
	case m.focus == focusSearch:
		return m.blurSearch()
	case m.focus == focusAdd && !page.Route().IsAddPage():
		m.addInput.Blur()
		m.focus = focusPage
	}
	return nil
}

func (m *Model) focusSearchBar() tea.Cmd {
	m.focus = focusSearch
	m.search.Focus()
	m.engine.Page().Focus(nav.SearchSelector)
	m.searchInput.CursorEnd()
	return m.searchInput.Focus()
}

func (m *Model) blurSearch() tea.Cmd {
	m.searchInput.Blur()
	m.focus = focusPage
	if m.engine.Page().Focused() == nav.SearchSelector {
		m.engine.Page().Focus("")
	}
	gen := m.search.Blur()
	return blurAfter(gen, m.cfg.BlurGrace)
}

// refresh re-renders the page body and link list. The cursor is kept when
// keepCursor is set and still in range.
func (m *Model) refresh(keepCursor bool) {
	page := m.engine.Page()
	m.body.SetContent(renderBody(page, m.base, m.body.Width))
	m.body.SetYOffset(page.Scroll().Y)
	m.links = page.Links()
	if !keepCursor || m.cursor >= len(m.links) {
		m.cursor = 0
	}
}

// syncScroll copies the viewport offset into the page, where navigation
// captures it.
func (m *Model) syncScroll() {
	m.engine.Page().ScrollTo(0, m.body.YOffset)
}

func (m *Model) journalEvent(ev types.ChangeEvent) {
	if m.db == nil {
		return
	}
	if err := storage.RecordEvent(m.db, ev, time.Now()); err != nil {
		applog.Error("journal.event", err)
	}
}

func (m *Model) setError(text string) {
	m.notice = text
	m.noticeErr = true
}

func (m *Model) setNotice(text string) {
	m.notice = text
	m.noticeErr = false
}

func (m Model) paneHeight() int {
	// top bar, search bar, add bar, bottom bar, borders
	return max(m.height-6, 1)
}

func (m Model) connected() bool {
	return m.stream != nil && m.stream.State().Connected
}

func (m Model) View() string {
	if m.width == 0 {
		return "\n  Loading...\n"
	}
	page := m.engine.Page()

	title := page.Title()
	if title == "" {
		title = "sensibleHub"
	}
	topBar := renderTopBar(title, page.Location(), m.connected(), m.state.Progress.Visible(),
		m.loading || m.inval.Pending(), m.width)

	bar := m.searchInput.View()
	if page.Route().IsAddPage() {
		bar = lipgloss.JoinHorizontal(lipgloss.Top, bar, "   ", m.addInput.View())
	}

	bodyWidth := m.width * BodyWidthPct / 100
	sideWidth := m.width - bodyWidth - 4
	bodyBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(bodyWidth - 2).
		Height(m.paneHeight())
	sideBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(sideWidth).
		Height(m.paneHeight())

	var side string
	if results := m.search.Results(); len(results) > 0 {
		side = renderSuggestions(results, m.search.Selected())
	} else {
		side = renderLinks(m.links, m.cursor, m.paneHeight())
	}
	panes := lipgloss.JoinHorizontal(lipgloss.Top, bodyBorder.Render(m.body.View()), sideBorder.Render(side))

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	var bottom string
	if m.notice != "" {
		if m.noticeErr {
			bottom = errorStyle.Render(m.notice) + "  "
		} else {
			bottom = countStyle.Render(m.notice) + "  "
		}
	}
	switch m.focus {
	case focusSearch:
		bottom += bottomBarStyle.Render("type to search · ↑↓ select · enter open · esc close")
	case focusAdd:
		bottom += bottomBarStyle.Render("enter add · esc cancel")
	default:
		help := "↑↓/jk links · enter open · / search · n add page · r reload · backspace back · esc home · q quit"
		if page.Route().IsAddPage() {
			help = "a edit link · x abort download · " + help
		}
		bottom += bottomBarStyle.Render(help)
	}

	return lipgloss.JoinVertical(lipgloss.Left, topBar, bar, panes, bottom)
}

func renderSuggestions(results []types.SearchResult, selected int) string {
	var b strings.Builder
	for i, r := range results {
		if i == selected {
			b.WriteString(cursorStyle.Render("> " + r.Title))
		} else {
			b.WriteString("  " + r.Title)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
