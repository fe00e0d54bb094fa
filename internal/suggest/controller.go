package suggest

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/lotas/sensiblelive/internal/applog"
	"github.com/lotas/sensiblelive/internal/transport"
	"github.com/lotas/sensiblelive/internal/types"
)

const searchPath = "/api/v1/search"

// Getter performs JSON GET requests. transport.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, path string, dest any) transport.Result
}

// Lookup asks the server for suggestions matching query.
func Lookup(ctx context.Context, g Getter, query string) (types.SearchResponse, transport.Result) {
	return LookupN(ctx, g, query, 0)
}

// LookupN is Lookup with a result limit. A limit of zero keeps the server
// default.
func LookupN(ctx context.Context, g Getter, query string, limit int) (types.SearchResponse, transport.Result) {
	path := searchPath + "?q=" + url.QueryEscape(query)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	var resp types.SearchResponse
	res := g.GetJSON(ctx, path, &resp)
	return resp, res
}

// SubmitURL is the search results route for raw query text.
func SubmitURL(text string) string {
	return "/search?q=" + url.QueryEscape(text)
}

// OutcomeKind says what Enter led to.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	// OutcomeFollow opens the selected suggestion.
	OutcomeFollow
	// OutcomeSubmit opens the search results route.
	OutcomeSubmit
)

// Outcome is the navigation Enter asks for.
type Outcome struct {
	Kind OutcomeKind
	URL  string
}

// Controller is the autocomplete state machine for the search bar. It does
// no I/O; the caller sends the queries Input returns and feeds responses to
// Accept.
type Controller struct {
	live         string
	results      []types.SearchResult
	selected     int
	selectedText string
	lastAccepted string
	accepted     bool // a response for lastAccepted has been rendered

	focused bool
	blurGen uint64
}

func New() *Controller {
	return &Controller{selected: -1}
}

// Input records the live text. It returns the query to send, or false when
// the text is blank, in which case the suggestions are cleared.
func (c *Controller) Input(text string) (string, bool) {
	c.live = text
	if strings.TrimSpace(text) == "" {
		c.clear()
		return "", false
	}
	return text, true
}

// Due reports whether a debounced query should still be sent.
func (c *Controller) Due(query string) bool {
	return query == c.live && strings.TrimSpace(query) != ""
}

// Accept renders resp unless its echoed query is no longer the live text.
func (c *Controller) Accept(resp types.SearchResponse) bool {
	if resp.Query != c.live {
		applog.Info("suggest.stale", "query", resp.Query, "live", c.live)
		return false
	}
	c.results = resp.Results
	c.lastAccepted = resp.Query
	c.accepted = true

	if len(c.results) == 1 || (len(c.results) > 0 && c.selectedText != "" && c.results[0].Title == c.selectedText) {
		c.selectIndex(0)
	} else {
		c.selected = -1
	}
	return true
}

// Down moves the selection one step down and stops at the last result.
func (c *Controller) Down() {
	if len(c.results) == 0 {
		return
	}
	switch {
	case c.selected < 0:
		c.selectIndex(0)
	case c.selected < len(c.results)-1:
		c.selectIndex(c.selected + 1)
	}
}

// Up moves the selection one step up. At the first result it deselects.
func (c *Controller) Up() {
	switch {
	case c.selected == 0:
		c.selected = -1
		c.selectedText = ""
	case c.selected > 0:
		c.selectIndex(c.selected - 1)
	}
}

func (c *Controller) selectIndex(i int) {
	c.selected = i
	c.selectedText = c.results[i].Title
}

// Enter resolves the Enter key. A selection is followed. Without one the
// raw text is submitted, except when the server already answered the live
// text with no results.
func (c *Controller) Enter() Outcome {
	if c.selected >= 0 {
		return Outcome{Kind: OutcomeFollow, URL: types.SongPath(c.results[c.selected].ID)}
	}
	if strings.TrimSpace(c.live) == "" {
		return Outcome{}
	}
	if c.accepted && c.lastAccepted == c.live && len(c.results) == 0 {
		return Outcome{}
	}
	return Outcome{Kind: OutcomeSubmit, URL: c.Submit()}
}

// Submit returns the search route for the live text.
func (c *Controller) Submit() string {
	return SubmitURL(c.live)
}

// Focus marks the search bar focused. Pending blur timers become no-ops.
func (c *Controller) Focus() {
	c.focused = true
	c.blurGen++
}

// Blur marks the search bar unfocused and returns the generation to hand
// to BlurElapsed once the grace delay has passed.
func (c *Controller) Blur() uint64 {
	c.focused = false
	c.blurGen++
	return c.blurGen
}

// BlurElapsed clears the suggestions if nothing refocused the search bar
// since the matching Blur. It reports whether it cleared anything.
func (c *Controller) BlurElapsed(gen uint64) bool {
	if c.focused || gen != c.blurGen {
		return false
	}
	had := len(c.results) > 0
	c.results = nil
	c.selected = -1
	return had
}

// Focused reports whether the search bar has focus.
func (c *Controller) Focused() bool {
	return c.focused
}

// Live returns the current search bar text.
func (c *Controller) Live() string {
	return c.live
}

// Results returns the rendered suggestions.
func (c *Controller) Results() []types.SearchResult {
	return c.results
}

// Selected returns the selected index, -1 for none.
func (c *Controller) Selected() int {
	return c.selected
}

// Reset empties the controller, as when the page is replaced.
func (c *Controller) Reset() {
	c.live = ""
	c.clear()
}

func (c *Controller) clear() {
	c.results = nil
	c.selected = -1
	c.accepted = false
}
