package view

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// songMarkerSelector is the hidden input a song page carries. On a search
// that resolved to a single song it names the canonical song.
const songMarkerSelector = "#song-id"

// Document is a parsed HTML document, usually a freshly fetched page that has
// not been swapped in yet.
type Document struct {
	root *html.Node
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// MustParse parses a document literal and panics on error. Meant for fixed
// markup such as the blank start page.
func MustParse(markup string) *Document {
	d, err := Parse(strings.NewReader(markup))
	if err != nil {
		panic(err)
	}
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	t := dom.QuerySelector(d.root, "title")
	if t == nil {
		return ""
	}
	return strings.TrimSpace(dom.TextContent(t))
}

// SongMarker returns the value of the hidden song-id field, or "".
func (d *Document) SongMarker() string {
	n := dom.QuerySelector(d.root, songMarkerSelector)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(dom.GetAttribute(n, "value"))
}

// HTML renders the document back to markup.
func (d *Document) HTML() string {
	var b strings.Builder
	html.Render(&b, d.root)
	return b.String()
}
