package nav

import (
	"context"
	"fmt"

	"github.com/lotas/sensiblelive/internal/applog"
	"github.com/lotas/sensiblelive/internal/session"
	"github.com/lotas/sensiblelive/internal/transport"
	"github.com/lotas/sensiblelive/internal/types"
	"github.com/lotas/sensiblelive/internal/view"
)

// SearchSelector is the search bar focused after a search submission.
const SearchSelector = "#search-bar"

// Fetcher retrieves a page body. transport.Client implements it.
type Fetcher interface {
	FetchHTML(ctx context.Context, path string) ([]byte, transport.Result)
}

// Options describe a navigation.
type Options struct {
	// Reload marks a reload-in-place: the scroll position survives.
	Reload bool
	// FocusSearch focuses the search bar afterwards, unless redirected.
	FocusSearch bool
	// Back drops the current history entry once the result is applied.
	Back bool
}

// Request is a navigation that has been started but not completed.
type Request struct {
	Seq     uint64
	URL     string
	Options Options
	Scroll  types.ScrollMemo
}

// Result is a fetched navigation, ready to be completed on the event loop.
type Result struct {
	Request Request
	Doc     *view.Document
	Res     transport.Result
}

// Change describes a completed navigation to the change hooks.
type Change struct {
	Request    Request
	Page       *view.Page
	Status     int
	Redirected bool
}

// Engine replaces the live page with fetched documents. Begin and Complete
// must run on the event loop; Fetch may run anywhere.
type Engine struct {
	fetcher Fetcher
	page    *view.Page
	state   *session.State
	regions []string

	seq       uint64
	hooks     []func(Change)
	failHooks []func(Request, transport.Result)
}

// New creates an engine driving page. Regions default to the body.
func New(fetcher Fetcher, page *view.Page, state *session.State, regions []string) *Engine {
	if len(regions) == 0 {
		regions = []string{"body"}
	}
	return &Engine{
		fetcher: fetcher,
		page:    page,
		state:   state,
		regions: regions,
	}
}

// Page returns the live page.
func (e *Engine) Page() *view.Page {
	return e.page
}

// OnChange registers a hook that runs after every applied navigation, in
// registration order.
func (e *Engine) OnChange(hook func(Change)) {
	e.hooks = append(e.hooks, hook)
}

// OnFailure registers a hook that runs when the latest navigation fails.
func (e *Engine) OnFailure(hook func(Request, transport.Result)) {
	e.failHooks = append(e.failHooks, hook)
}

// Latest returns the sequence number of the most recent request.
func (e *Engine) Latest() uint64 {
	return e.seq
}

// Begin starts a navigation to url. Any earlier request still in flight
// becomes stale.
func (e *Engine) Begin(url string, opts Options) Request {
	e.seq++
	scroll := e.page.Scroll()
	e.state.Scroll = scroll
	applog.Info("nav.begin", "url", url, "seq", e.seq, "reload", opts.Reload)
	return Request{Seq: e.seq, URL: url, Options: opts, Scroll: scroll}
}

// Fetch loads and parses the document for req. Error pages the server
// answers with are kept so they can be shown; only a request that never got
// an answer yields no document.
func (e *Engine) Fetch(ctx context.Context, req Request) Result {
	body, res := e.fetcher.FetchHTML(ctx, req.URL)
	if res.Synthetic || (!res.OK() && len(body) == 0) {
		return Result{Request: req, Res: res}
	}
	doc, err := view.ParseBytes(body)
	if err != nil {
		return Result{
			Request: req,
			Res:     transport.Result{Status: transport.StatusUnparsable, Message: err.Error()},
		}
	}
	return Result{Request: req, Doc: doc, Res: res}
}

// Complete applies a fetched result to the page. It reports false without an
// error when the result is stale. A result without a document leaves the page
// untouched and reports the failure.
func (e *Engine) Complete(r Result) (bool, error) {
	req := r.Request
	if req.Seq != e.seq {
		applog.Info("nav.stale", "url", req.URL, "seq", req.Seq, "latest", e.seq)
		return false, nil
	}
	if r.Doc == nil {
		err := r.Res.Err()
		if err == nil {
			err = fmt.Errorf("empty document")
		}
		applog.Error("nav.fetch", err, "url", req.URL)
		for _, h := range e.failHooks {
			h(req, r.Res)
		}
		return false, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	if id := r.Doc.SongMarker(); id != "" {
		if canonical := types.SongPath(id); types.RouteOf(req.URL).Path != canonical {
			e.state.Redirect.Set(canonical)
		}
	}

	sameLocation := req.URL == e.page.Location()
	e.page.Swap(r.Doc, e.regions)
	switch {
	case req.Options.Back:
		e.page.Pop()
		e.page.Replace(req.URL)
	case sameLocation:
		e.page.Replace(req.URL)
	default:
		e.page.Push(req.URL)
	}

	redirected := false
	if to, ok := e.state.Redirect.Take(); ok {
		e.page.Replace(to)
		redirected = true
		applog.Info("nav.redirect", "from", req.URL, "to", to)
	}

	e.page.ClearMedia()

	change := Change{Request: req, Page: e.page, Status: r.Res.Status, Redirected: redirected}
	for _, h := range e.hooks {
		h(change)
	}

	if req.Options.Reload {
		e.page.ScrollTo(req.Scroll.X, req.Scroll.Y)
	} else {
		e.page.ScrollTo(0, 0)
	}
	e.page.Focus("")
	if req.Options.FocusSearch && !redirected {
		e.page.Focus(SearchSelector)
	}

	applog.Info("nav.complete", "url", e.page.Location(), "title", e.page.Title(), "status", r.Res.Status, "seq", req.Seq)
	return true, nil
}

// Navigate fetches url and applies it.
func (e *Engine) Navigate(ctx context.Context, url string, opts Options) (bool, error) {
	req := e.Begin(url, opts)
	return e.Complete(e.Fetch(ctx, req))
}

// Reload refetches the current location, keeping the scroll position.
func (e *Engine) Reload(ctx context.Context) (bool, error) {
	return e.Navigate(ctx, e.page.Location(), Options{Reload: true})
}

// BeginBack starts a navigation to the previous history entry. Location and
// history stay as they are until the result is applied. It reports false when
// there is nowhere to go.
func (e *Engine) BeginBack() (Request, bool) {
	prev, ok := e.page.Previous()
	if !ok {
		return Request{}, false
	}
	return e.Begin(prev, Options{Back: true}), true
}

// Back goes to the previous history entry.
func (e *Engine) Back(ctx context.Context) (bool, error) {
	req, ok := e.BeginBack()
	if !ok {
		return false, nil
	}
	return e.Complete(e.Fetch(ctx, req))
}
