package view

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const listingHTML = `<!DOCTYPE html>
<html><head><title>Songs</title></head>
<body>
<progress id="main-progress" class="progress is-hidden"></progress>
<main>
  <div class="song" data-song-id="a1"><a href="/song/a1">First</a><img src="/song/a1/cover"></div>
  <div class="song" data-song-id="b2"><a href="/song/b2">Second</a><img src="/song/b2/cover"></div>
</main>
<audio src="/song/a1/audio" autoplay></audio>
</body></html>`

func newListingPage(t *testing.T) *Page {
	t.Helper()
	return NewPage("/songs", MustParse(listingHTML))
}

func TestDocumentTitleAndMarker(t *testing.T) {
	d := MustParse(`<html><head><title>  Search results </title></head>
<body><input type="hidden" id="song-id" value="42"></body></html>`)
	if got := d.Title(); got != "Search results" {
		t.Errorf("Title = %q", got)
	}
	if got := d.SongMarker(); got != "42" {
		t.Errorf("SongMarker = %q, want 42", got)
	}
	if MustParse("<p>x</p>").SongMarker() != "" {
		t.Error("expected no marker")
	}
}

func TestPageRemove(t *testing.T) {
	p := newListingPage(t)
	if n := p.Remove(`[data-song-id="a1"]`); n != 1 {
		t.Fatalf("Remove = %d, want 1", n)
	}
	if p.Exists(`[data-song-id="a1"]`) {
		t.Error("element still present after Remove")
	}
	if !p.Exists(`[data-song-id="b2"]`) {
		t.Error("sibling must survive")
	}
	if n := p.Remove(`[data-song-id="zz"]`); n != 0 {
		t.Errorf("Remove of missing = %d", n)
	}
}

func TestPageToggleClass(t *testing.T) {
	p := newListingPage(t)
	p.ToggleClass("#main-progress", "is-hidden", false)
	if p.HasClass("#main-progress", "is-hidden") {
		t.Error("class not removed")
	}
	if !p.HasClass("#main-progress", "progress") {
		t.Error("unrelated class lost")
	}
	p.ToggleClass("#main-progress", "is-hidden", true)
	p.ToggleClass("#main-progress", "is-hidden", true)
	if got := p.Attr("#main-progress", "class"); got != "progress is-hidden" {
		t.Errorf("class = %q, want no duplicates", got)
	}
}

func TestPageSetTextAndValue(t *testing.T) {
	p := NewPage("/add", MustParse(`<body><p id="add-notif">old</p><input id="searchTerm" value=""></body>`))
	p.SetText("#add-notif", "Link must not be empty")
	if got := p.Text("#add-notif"); got != "Link must not be empty" {
		t.Errorf("Text = %q", got)
	}
	if p.Value("#searchTerm") != "" {
		t.Error("expected empty input")
	}
	p.SetValue("#searchTerm", "https://example.com/watch")
	if p.Value("#searchTerm") != "https://example.com/watch" {
		t.Errorf("Value = %q", p.Value("#searchTerm"))
	}
}

func TestPageSwapRegions(t *testing.T) {
	p := newListingPage(t)
	next := MustParse(`<html><head><title>Artists</title></head><body><main><a href="/artist/x">X</a></main></body></html>`)

	p.Swap(next, []string{"main"})

	if p.Title() != "Artists" {
		t.Errorf("Title = %q, want Artists", p.Title())
	}
	if p.Exists(`[data-song-id]`) {
		t.Error("old region content still present")
	}
	if !p.Exists("#main-progress") {
		t.Error("content outside the region must be kept")
	}
	links := p.Links()
	if len(links) != 1 || links[0].Href != "/artist/x" || links[0].Text != "X" {
		t.Errorf("Links = %+v", links)
	}
}

func TestPageSwapMissingRegionReplacesDocument(t *testing.T) {
	p := newListingPage(t)
	next := MustParse(`<html><head><title>Plain</title></head><body><p>no main here</p></body></html>`)

	p.Swap(next, []string{"main"})

	if p.Title() != "Plain" {
		t.Errorf("Title = %q", p.Title())
	}
	if p.Exists("#main-progress") {
		t.Error("expected whole document replacement")
	}
}

func TestPageHistory(t *testing.T) {
	p := NewPage("/", nil)
	p.Push("/search?q=abc")
	p.Replace("/song/42")
	p.Push("/songs")

	if got := strings.Join(p.History(), " "); got != "/ /song/42 /songs" {
		t.Errorf("History = %s", got)
	}
	prev, ok := p.Previous()
	if !ok || prev != "/song/42" {
		t.Errorf("Previous = %q, %v", prev, ok)
	}
	p.Pop()
	p.Pop()
	p.Pop()
	if got := p.History(); len(got) != 1 || got[0] != "/" {
		t.Errorf("History after pops = %v", got)
	}
}

func TestPageClearMedia(t *testing.T) {
	p := newListingPage(t)
	if n := p.ClearMedia(); n == 0 {
		t.Fatal("no media elements found")
	}
	if p.Attr("audio", "src") != "" || p.Exists("audio[autoplay]") {
		t.Error("audio source not cleared")
	}
}

func TestPageRewriteAttr(t *testing.T) {
	p := newListingPage(t)
	n := p.RewriteAttr("img", "src", func(_ *html.Node, v string) (string, bool) {
		if strings.HasPrefix(v, "/song/b2/") {
			return v + "?v=1", true
		}
		return v, false
	})
	if n != 1 {
		t.Errorf("rewrites = %d, want 1", n)
	}
	if p.Attr(`[data-song-id="b2"] img`, "src") != "/song/b2/cover?v=1" {
		t.Errorf("src = %q", p.Attr(`[data-song-id="b2"] img`, "src"))
	}
}

func TestPageScrollClamps(t *testing.T) {
	p := NewPage("/", nil)
	p.ScrollTo(-3, 12)
	if s := p.Scroll(); s.X != 0 || s.Y != 12 {
		t.Errorf("Scroll = %+v", s)
	}
}
