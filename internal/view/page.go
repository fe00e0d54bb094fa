package view

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"github.com/lotas/sensiblelive/internal/types"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	linkSelector  = cascadia.MustCompile("a[href]")
	mediaSelector = cascadia.MustCompile("audio, video, source")
)

// Link is an anchor in the live document.
type Link struct {
	Text string
	Href string
}

// Page is the live document plus the navigation state that belongs to it:
// location, history, scroll position and focus. It is not safe for
// concurrent use; only the event loop touches it.
type Page struct {
	location string
	doc      *Document
	scroll   types.ScrollMemo
	focus    string
	history  []string
}

// NewPage creates a page showing doc at location. The location becomes the
// first history entry.
func NewPage(location string, doc *Document) *Page {
	if doc == nil {
		doc = MustParse("<html><head><title></title></head><body></body></html>")
	}
	return &Page{
		location: location,
		doc:      doc,
		history:  []string{location},
	}
}

// Location returns the current path and query.
func (p *Page) Location() string {
	return p.location
}

// Route classifies the current location.
func (p *Page) Route() types.Route {
	return types.RouteOf(p.location)
}

// Title returns the live document title.
func (p *Page) Title() string {
	return p.doc.Title()
}

// Document exposes the live document for rendering.
func (p *Page) Document() *Document {
	return p.doc
}

// Exists reports whether any element matches sel.
func (p *Page) Exists(sel string) bool {
	return dom.QuerySelector(p.doc.root, sel) != nil
}

// Text returns the collapsed text content of the first match.
func (p *Page) Text(sel string) string {
	n := dom.QuerySelector(p.doc.root, sel)
	if n == nil {
		return ""
	}
	return collapse(dom.TextContent(n))
}

// SetText replaces the children of every match with a text node.
func (p *Page) SetText(sel, text string) int {
	nodes := dom.QuerySelectorAll(p.doc.root, sel)
	for _, n := range nodes {
		setText(n, text)
	}
	return len(nodes)
}

// ToggleClass adds (on) or removes (!on) a class on every match.
func (p *Page) ToggleClass(sel, class string, on bool) int {
	nodes := dom.QuerySelectorAll(p.doc.root, sel)
	for _, n := range nodes {
		classes := strings.Fields(dom.GetAttribute(n, "class"))
		kept := classes[:0]
		for _, c := range classes {
			if c != class {
				kept = append(kept, c)
			}
		}
		if on {
			kept = append(kept, class)
		}
		dom.SetAttribute(n, "class", strings.Join(kept, " "))
	}
	return len(nodes)
}

// HasClass reports whether the first match carries class.
func (p *Page) HasClass(sel, class string) bool {
	n := dom.QuerySelector(p.doc.root, sel)
	if n == nil {
		return false
	}
	for _, c := range strings.Fields(dom.GetAttribute(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Remove detaches every match from the document.
func (p *Page) Remove(sel string) int {
	nodes := dom.QuerySelectorAll(p.doc.root, sel)
	for _, n := range nodes {
		dom.DetachChild(n)
	}
	return len(nodes)
}

// Value returns the value of the first matching form field.
func (p *Page) Value(sel string) string {
	n := dom.QuerySelector(p.doc.root, sel)
	if n == nil {
		return ""
	}
	if n.DataAtom == atom.Textarea {
		return dom.TextContent(n)
	}
	return dom.GetAttribute(n, "value")
}

// SetValue sets the value of every matching input.
func (p *Page) SetValue(sel, value string) int {
	return p.SetAttr(sel, "value", value)
}

// Attr returns an attribute of the first match.
func (p *Page) Attr(sel, name string) string {
	n := dom.QuerySelector(p.doc.root, sel)
	if n == nil {
		return ""
	}
	return dom.GetAttribute(n, name)
}

// SetAttr sets an attribute on every match.
func (p *Page) SetAttr(sel, name, value string) int {
	nodes := dom.QuerySelectorAll(p.doc.root, sel)
	for _, n := range nodes {
		dom.SetAttribute(n, name, value)
	}
	return len(nodes)
}

// RewriteAttr passes the named attribute of every match through fn and stores
// the result when fn reports a change. It returns the number of rewrites.
func (p *Page) RewriteAttr(sel, name string, fn func(node *html.Node, value string) (string, bool)) int {
	count := 0
	for _, n := range dom.QuerySelectorAll(p.doc.root, sel) {
		if !dom.HasAttribute(n, name) {
			continue
		}
		if v, ok := fn(n, dom.GetAttribute(n, name)); ok {
			dom.SetAttribute(n, name, v)
			count++
		}
	}
	return count
}

// Links lists the anchors of the document in order.
func (p *Page) Links() []Link {
	var links []Link
	for _, a := range linkSelector.MatchAll(p.doc.root) {
		href := strings.TrimSpace(dom.GetAttribute(a, "href"))
		if href == "" {
			continue
		}
		text := collapse(dom.TextContent(a))
		if text == "" {
			text = collapse(dom.GetAttribute(a, "title"))
		}
		links = append(links, Link{Text: text, Href: href})
	}
	return links
}

// Swap moves the designated regions of a fetched document into the live one
// and adopts the fetched title. When a region is missing on either side the
// whole document is replaced instead. The fetched document must not be used
// afterwards.
func (p *Page) Swap(fetched *Document, regions []string) {
	title := fetched.Title()

	type pair struct{ live, next *html.Node }
	pairs := make([]pair, 0, len(regions))
	for _, sel := range regions {
		live := dom.QuerySelector(p.doc.root, sel)
		next := dom.QuerySelector(fetched.root, sel)
		if live == nil || next == nil || live.Parent == nil {
			p.doc = fetched
			return
		}
		pairs = append(pairs, pair{live, next})
	}

	for _, pr := range pairs {
		if pr.next.Parent != nil {
			pr.next.Parent.RemoveChild(pr.next)
		}
		parent := pr.live.Parent
		parent.InsertBefore(pr.next, pr.live)
		parent.RemoveChild(pr.live)
	}
	p.setTitle(title)
}

func (p *Page) setTitle(title string) {
	if t := dom.QuerySelector(p.doc.root, "title"); t != nil {
		setText(t, title)
		return
	}
	head := dom.QuerySelector(p.doc.root, "head")
	if head == nil {
		return
	}
	t := &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
	head.AppendChild(t)
	setText(t, title)
}

// Push appends a history entry and makes it current.
func (p *Page) Push(location string) {
	p.history = append(p.history, location)
	p.location = location
}

// Replace overwrites the current history entry.
func (p *Page) Replace(location string) {
	if len(p.history) == 0 {
		p.history = []string{location}
	} else {
		p.history[len(p.history)-1] = location
	}
	p.location = location
}

// Previous returns the entry before the current one, without moving.
func (p *Page) Previous() (string, bool) {
	if len(p.history) < 2 {
		return "", false
	}
	return p.history[len(p.history)-2], true
}

// Pop drops the current history entry. It keeps at least one entry.
func (p *Page) Pop() {
	if len(p.history) > 1 {
		p.history = p.history[:len(p.history)-1]
	}
}

// History returns a copy of the history entries, oldest first.
func (p *Page) History() []string {
	return append([]string(nil), p.history...)
}

// Scroll returns the scroll position.
func (p *Page) Scroll() types.ScrollMemo {
	return p.scroll
}

// ScrollTo moves the scroll position. Negative values clamp to zero.
func (p *Page) ScrollTo(x, y int) {
	p.scroll = types.ScrollMemo{X: max(x, 0), Y: max(y, 0)}
}

// Focus records which element holds keyboard focus.
func (p *Page) Focus(sel string) {
	p.focus = sel
}

// Focused returns the focused selector, or "".
func (p *Page) Focused() string {
	return p.focus
}

// ClearMedia strips sources from media elements so nothing keeps playing
// for a page that is no longer shown. It returns the number of elements.
func (p *Page) ClearMedia() int {
	nodes := mediaSelector.MatchAll(p.doc.root)
	for _, n := range nodes {
		dom.RemoveAttribute(n, "src")
		dom.RemoveAttribute(n, "autoplay")
	}
	return len(nodes)
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
