package cachebust

import (
	"net/url"
	"regexp"

	"github.com/google/uuid"
	"github.com/lotas/sensiblelive/internal/types"
	"golang.org/x/net/html"
)

const (
	// TokenParam is the query parameter carrying the freshness token.
	TokenParam = "v"

	detailImageSelector = "#song-cover"
)

var coverPath = regexp.MustCompile(`^/song/([^/]+)/cover$`)

// Rewriter is the part of the live page the registry writes to.
type Rewriter interface {
	Route() types.Route
	RewriteAttr(sel, name string, fn func(node *html.Node, value string) (string, bool)) int
}

// Registry is the set of songs changed since the page session started,
// each mapped to a freshness token. Entries are never evicted; deletion
// removes them.
type Registry struct {
	tokens   map[string]string
	newToken func() string
}

// New returns an empty registry that issues random UUID tokens.
func New() *Registry {
	return &Registry{
		tokens:   make(map[string]string),
		newToken: uuid.NewString,
	}
}

// Touch assigns id a fresh token and returns it.
func (r *Registry) Touch(id string) string {
	tok := r.newToken()
	r.tokens[id] = tok
	return tok
}

// Forget removes id, so its images are no longer rewritten.
func (r *Registry) Forget(id string) {
	delete(r.tokens, id)
}

// Token returns the current token for id.
func (r *Registry) Token(id string) (string, bool) {
	tok, ok := r.tokens[id]
	return tok, ok
}

// Len returns the number of tracked songs.
func (r *Registry) Len() int {
	return len(r.tokens)
}

// Apply rewrites image URLs on the page for every tracked song. The detail
// image of a song page is handled by route; listing thumbnails are matched by
// their cover URL. Both passes run on every call.
func (r *Registry) Apply(p Rewriter) int {
	if len(r.tokens) == 0 {
		return 0
	}
	count := 0

	if id, ok := p.Route().SongID(); ok {
		if tok, ok := r.tokens[id]; ok {
			count += p.RewriteAttr(detailImageSelector, "src", func(_ *html.Node, src string) (string, bool) {
				return withToken(src, tok)
			})
		}
	}

	count += p.RewriteAttr("img", "src", func(n *html.Node, src string) (string, bool) {
		if isDetailImage(n) {
			return src, false
		}
		u, err := url.Parse(src)
		if err != nil {
			return src, false
		}
		m := coverPath.FindStringSubmatch(u.Path)
		if m == nil {
			return src, false
		}
		tok, ok := r.tokens[m[1]]
		if !ok {
			return src, false
		}
		return withToken(src, tok)
	})
	return count
}

func isDetailImage(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "id" && a.Val == detailImageSelector[1:] {
			return true
		}
	}
	return false
}

func withToken(src, tok string) (string, bool) {
	u, err := url.Parse(src)
	if err != nil {
		return src, false
	}
	q := u.Query()
	if q.Get(TokenParam) == tok {
		return src, false
	}
	q.Set(TokenParam, tok)
	u.RawQuery = q.Encode()
	return u.String(), true
}
