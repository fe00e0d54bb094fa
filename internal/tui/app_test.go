package tui

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/sensiblelive/internal/config"
	"github.com/lotas/sensiblelive/internal/nav"
	"github.com/lotas/sensiblelive/internal/transport"
	"github.com/lotas/sensiblelive/internal/types"
)

type fakeBackend struct {
	pages   map[string]string
	search  map[string][]types.SearchResult
	post    transport.Result
	posted  []string
	fetches []string
}

func (f *fakeBackend) FetchHTML(_ context.Context, path string) ([]byte, transport.Result) {
	f.fetches = append(f.fetches, path)
	body, ok := f.pages[path]
	if !ok {
		return nil, transport.Result{Status: transport.StatusConnectionError, Message: "Error while connecting.", Synthetic: true}
	}
	return []byte(body), transport.Result{Status: http.StatusOK}
}

func (f *fakeBackend) GetJSON(_ context.Context, path string, dest any) transport.Result {
	u, err := url.Parse(path)
	if err != nil {
		return transport.Result{Status: http.StatusBadRequest}
	}
	q := u.Query().Get("q")
	resp := dest.(*types.SearchResponse)
	resp.Query = q
	resp.Results = f.search[q]
	return transport.Result{Status: http.StatusOK}
}

func (f *fakeBackend) PostJSON(_ context.Context, path string, _ any, _ any) transport.Result {
	f.posted = append(f.posted, path)
	return f.post
}

func (f *fakeBackend) SameOrigin(link string) (string, bool) {
	if !strings.HasPrefix(link, "/") {
		return "", false
	}
	return link, true
}

func (f *fakeBackend) Resolve(path string) string {
	return "http://sensible.test" + path
}

const (
	homeHTML = `<html><head><title>Home</title></head><body>
<progress id="main-progress" class="is-hidden"></progress>
<div data-song-id="a1"><a href="/song/a1">First Song</a><img src="/song/a1/cover"></div>
<div data-song-id="b2"><a href="/song/b2">Second Song</a><img src="/song/b2/cover"></div>
<a href="https://example.com/">External</a>
</body></html>`
	addHTML = `<html><head><title>Add</title></head><body>
<progress id="main-progress" class="is-hidden"></progress>
<p id="add-notif"></p><input id="searchTerm" value="">
</body></html>`
)

func newTestModel(t *testing.T, fb *fakeBackend) Model {
	t.Helper()
	cfg := config.Default()
	cfg.Debounce = time.Millisecond
	cfg.BlurGrace = time.Millisecond
	m := NewModel(context.Background(), Options{Backend: fb, Config: cfg})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

// load completes a navigation to path synchronously.
func load(t *testing.T, m Model, path string) Model {
	t.Helper()
	cmd := m.navigate(path, nav.Options{})
	return step(t, m, cmd)
}

// step runs a command that must not sleep and feeds its message back.
// Batches are unpacked in order.
func step(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				m = step(t, m, c)
			}
		}
		return m
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNavigationRendersLinks(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")

	if m.loading {
		t.Error("still loading")
	}
	if len(m.links) != 3 || m.links[0].Href != "/song/a1" {
		t.Fatalf("links = %+v", m.links)
	}
	if !strings.Contains(m.View(), "First Song") {
		t.Error("view does not show the page")
	}
}

func TestFollowLinkAndExternalNotice(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{
		"/":        homeHTML,
		"/song/b2": `<html><head><title>Second</title></head><body><h1>Second Song</h1></body></html>`,
	}}
	m := load(t, newTestModel(t, fb), "/")

	next, _ := m.Update(key("j"))
	m = next.(Model)
	next, cmd := m.Update(key("enter"))
	m = step(t, next.(Model), cmd)
	if m.engine.Page().Location() != "/song/b2" {
		t.Fatalf("location = %q", m.engine.Page().Location())
	}

	m = load(t, m, "/")
	m.cursor = 2
	next, cmd = m.Update(key("enter"))
	m = next.(Model)
	if cmd != nil || !strings.Contains(m.notice, "external link") {
		t.Errorf("external link: cmd=%v notice=%q", cmd != nil, m.notice)
	}
}

func TestDeleteEventRemovesRowInPlace(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")
	latest := m.engine.Latest()

	next, _ := m.Update(eventMsg{ev: types.ChangeEvent{Kind: types.KindSongDeleted, EntityID: "a1"}})
	m = next.(Model)
	if m.engine.Latest() != latest {
		t.Error("delete started a navigation")
	}
	for _, l := range m.links {
		if l.Href == "/song/a1" {
			t.Fatal("deleted row still listed")
		}
	}
}

func TestEditEventsCoalesceIntoOneReload(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")
	fetches := len(fb.fetches)

	next, cmd := m.Update(eventMsg{ev: types.ChangeEvent{Kind: types.KindSongEdited, EntityID: "a1"}})
	m = next.(Model)
	if cmd == nil {
		t.Fatal("no reload command")
	}
	latest := m.engine.Latest()
	for _, id := range []string{"b2", "c3"} {
		next, _ = m.Update(eventMsg{ev: types.ChangeEvent{Kind: types.KindSongAdded, EntityID: id}})
		m = next.(Model)
	}
	if m.engine.Latest() != latest {
		t.Errorf("extra navigations started: %d -> %d", latest, m.engine.Latest())
	}

	m = step(t, m, cmd)
	if len(fb.fetches) != fetches+1 {
		t.Errorf("fetches = %v", fb.fetches[fetches:])
	}
	if m.inval.Pending() {
		t.Error("refresh still pending after completion")
	}
	if got := m.engine.Page().Attr(`[data-song-id="a1"] img`, "src"); !strings.Contains(got, "v=") {
		t.Errorf("cover not cache-busted after reload: %q", got)
	}
}

func TestProgressEventShowsIndicatorAndError(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")

	next, _ := m.Update(eventMsg{ev: types.ChangeEvent{Kind: types.KindProgressStarted}})
	m = next.(Model)
	if m.engine.Page().HasClass("#main-progress", "is-hidden") {
		t.Error("indicator hidden while busy")
	}
	if !strings.Contains(m.View(), "working") {
		t.Error("top bar does not show progress")
	}

	next, _ = m.Update(eventMsg{ev: types.ChangeEvent{Kind: types.KindProgressEnded, Error: "<b>yt-dlp</b> failed"}})
	m = next.(Model)
	if m.notice != "yt-dlp failed" || !m.noticeErr {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestSearchDebounceAndAccept(t *testing.T) {
	fb := &fakeBackend{
		pages:  map[string]string{"/": homeHTML},
		search: map[string][]types.SearchResult{"sec": {{ID: "b2", Title: "Second Song"}}},
	}
	m := load(t, newTestModel(t, fb), "/")
	m.focus = focusSearch
	m.search.Focus()
	m.search.Input("se")
	m.search.Input("sec")

	if _, cmd := m.Update(debounceMsg{query: "se"}); cmd != nil {
		t.Error("superseded query dispatched")
	}
	next, cmd := m.Update(debounceMsg{query: "sec"})
	m = step(t, next.(Model), cmd)
	if m.search.Selected() != 0 || len(m.search.Results()) != 1 {
		t.Fatalf("results %+v selected %d", m.search.Results(), m.search.Selected())
	}

	next, cmd = m.Update(key("enter"))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("enter on a selection did nothing")
	}
	if m.focus != focusPage {
		t.Error("search bar still focused after following a suggestion")
	}
}

func TestSearchEnterWithZeroResultsDoesNothing(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")
	m.focus = focusSearch
	m.search.Input("abc")
	m.search.Accept(types.SearchResponse{Query: "abc"})
	latest := m.engine.Latest()

	next, cmd := m.Update(key("enter"))
	m = next.(Model)
	if cmd != nil || m.engine.Latest() != latest {
		t.Error("enter with zero results navigated")
	}
}

func TestSearchSubmitRefocusesSearchBar(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{
		"/":             homeHTML,
		"/search?q=sec": homeHTML,
	}}
	m := load(t, newTestModel(t, fb), "/")
	m.focus = focusSearch
	m.search.Input("sec")

	next, cmd := m.Update(key("enter"))
	m = step(t, next.(Model), cmd)
	if m.engine.Page().Location() != "/search?q=sec" {
		t.Fatalf("location = %q", m.engine.Page().Location())
	}
	if m.focus != focusSearch {
		t.Error("search bar not focused after submission")
	}
}

func TestAddFlow(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML, "/add": addHTML}}
	m := load(t, newTestModel(t, fb), "/")

	next, cmd := m.Update(key("n"))
	m = step(t, next.(Model), cmd)
	if !m.engine.Page().Route().IsAddPage() {
		t.Fatalf("location = %q", m.engine.Page().Location())
	}

	next, _ = m.Update(key("a"))
	m = next.(Model)
	if m.focus != focusAdd {
		t.Fatal("add input not focused")
	}
	next, _ = m.Update(key("enter"))
	m = next.(Model)
	if m.notice != emptyLinkMessage || m.engine.Page().Text(addNoticeSelector) != emptyLinkMessage {
		t.Errorf("empty link: notice %q page %q", m.notice, m.engine.Page().Text(addNoticeSelector))
	}
	if len(fb.posted) != 0 {
		t.Error("empty link was posted")
	}

	next, _ = m.Update(key("https://example.com/track"))
	m = next.(Model)
	if m.engine.Page().Value("#searchTerm") != "https://example.com/track" {
		t.Errorf("page input = %q", m.engine.Page().Value("#searchTerm"))
	}

	fb.post = transport.Result{Status: http.StatusBadRequest, Message: "unsupported <i>site</i>"}
	next, cmd = m.Update(key("enter"))
	m = step(t, next.(Model), cmd)
	if m.notice != "unsupported site" {
		t.Errorf("notice = %q", m.notice)
	}

	fb.post = transport.Result{Status: http.StatusOK}
	next, _ = m.Update(key("a"))
	m = next.(Model)
	next, cmd = m.Update(key("enter"))
	m = step(t, next.(Model), cmd)
	if cmd == nil {
		t.Fatal("no mutation command")
	}
	if fb.posted[len(fb.posted)-1] != addPath {
		t.Errorf("posted = %v", fb.posted)
	}
}

func TestAbortOnlyOnAddPageAfterConfirm(t *testing.T) {
	fb := &fakeBackend{
		pages: map[string]string{"/": homeHTML, "/add": addHTML},
		post:  transport.Result{Status: http.StatusOK},
	}
	m := load(t, newTestModel(t, fb), "/")

	next, cmd := m.Update(key("x"))
	m = next.(Model)
	if cmd != nil || m.abortArmed {
		t.Error("abort offered outside the add page")
	}

	m = load(t, m, "/add")
	next, cmd = m.Update(key("x"))
	m = next.(Model)
	if cmd != nil || m.notice != confirmAbort {
		t.Fatalf("first x: cmd=%v notice=%q", cmd != nil, m.notice)
	}
	next, _ = m.Update(key("j"))
	m = next.(Model)
	next, cmd = m.Update(key("x"))
	m = next.(Model)
	if cmd != nil {
		t.Error("confirmation survived another key")
	}

	next, cmd = m.Update(key("x"))
	m = step(t, next.(Model), cmd)
	if len(fb.posted) != 1 || fb.posted[0] != abortPath {
		t.Errorf("posted = %v", fb.posted)
	}
}

func TestMutationSuccessNavigates(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML, "/add": addHTML}}
	m := load(t, newTestModel(t, fb), "/add")

	next, cmd := m.Update(mutationMsg{path: abortPath, res: transport.Result{Status: http.StatusOK}, next: "/"})
	m = step(t, next.(Model), cmd)
	if m.engine.Page().Location() != "/" {
		t.Errorf("location = %q", m.engine.Page().Location())
	}
}

func TestFailedNavigationShowsNotice(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")

	m = load(t, m, "/unreachable")
	if m.notice != "Error while connecting." {
		t.Errorf("notice = %q", m.notice)
	}
	if m.engine.Page().Location() != "/" {
		t.Error("page replaced by failed navigation")
	}
}

func TestReconnectReloadsInPlace(t *testing.T) {
	fb := &fakeBackend{pages: map[string]string{"/": homeHTML}}
	m := load(t, newTestModel(t, fb), "/")
	m.engine.Page().ScrollTo(0, 2)
	m.body.SetYOffset(2)

	next, cmd := m.Update(eventMsg{ev: types.ChangeEvent{Kind: types.KindReconnected}})
	m = step(t, next.(Model), cmd)
	if len(m.engine.Page().History()) != 1 {
		t.Errorf("history = %v, want reload in place", m.engine.Page().History())
	}
}

func TestCleanNotice(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"<script>alert(1)</script>oops", "oops"},
		{"a &amp; b", "a & b"},
		{"  spaced\n out ", "spaced out"},
	}
	for _, tt := range tests {
		if got := cleanNotice(tt.in); got != tt.want {
			t.Errorf("cleanNotice(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderMarkdownKeepsText(t *testing.T) {
	out := renderMarkdown("# Lullaby\n\nA quiet song", 40)
	if !strings.Contains(out, "Lullaby") || !strings.Contains(out, "quiet") {
		t.Errorf("rendered = %q", out)
	}
}
