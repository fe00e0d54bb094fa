package types

import (
	"strings"
)

// Kind identifies what a ChangeEvent reports.
type Kind int

const (
	KindUnknown Kind = iota
	KindSongAdded
	KindSongEdited
	KindSongDeleted
	KindProgressStarted
	KindProgressEnded
	// KindReconnected is synthesized by the event client after every
	// successful connect that is not the first one. The server never sends it.
	KindReconnected
)

var kindWire = map[Kind]string{
	KindSongAdded:       "song-add",
	KindSongEdited:      "song-edit",
	KindSongDeleted:     "song-delete",
	KindProgressStarted: "progress-start",
	KindProgressEnded:   "progress-end",
	KindReconnected:     "reconnect",
}

// ParseKind maps a wire type string to a Kind. Unrecognized strings map to
// KindUnknown.
func ParseKind(s string) Kind {
	for k, v := range kindWire {
		if v == s && k != KindReconnected {
			return k
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	if s, ok := kindWire[k]; ok {
		return s
	}
	return "unknown"
}

// IsSong reports whether the kind describes a song mutation.
func (k Kind) IsSong() bool {
	return k == KindSongAdded || k == KindSongEdited || k == KindSongDeleted
}

// IsProgress reports whether the kind is a busy-start or busy-end signal.
func (k Kind) IsProgress() bool {
	return k == KindProgressStarted || k == KindProgressEnded
}

// ChangeEvent is a server-initiated change notification.
type ChangeEvent struct {
	Kind     Kind
	EntityID string // empty for progress events
	Error    string // optional failure text carried by progress-end
}

// ConnectionState describes the push connection as seen by the client.
type ConnectionState struct {
	Connected    bool
	FirstConnect bool // true until the first successful connect
}

// SearchResult is one autocomplete suggestion.
type SearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// ScrollMemo is a remembered scroll position.
type ScrollMemo struct {
	X int
	Y int
}

var listingPaths = map[string]bool{
	"/":           true,
	"/songs":      true,
	"/artists":    true,
	"/years":      true,
	"/incomplete": true,
	"/unsynced":   true,
	"/edits":      true,
	"/added":      true,
	"/search":     true,
}

// Route is the current location, classified. Derive it with RouteOf every
// time it is needed.
type Route struct {
	Path      string
	IsListing bool
}

// RouteOf classifies a location. Query strings and fragments are ignored.
func RouteOf(location string) Route {
	path := location
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		path = "/"
	}
	listing := listingPaths[path] ||
		strings.HasPrefix(path, "/album/") ||
		strings.HasPrefix(path, "/artist/")
	return Route{Path: path, IsListing: listing}
}

// SongID returns the id for a /song/{id} detail route.
func (r Route) SongID() (string, bool) {
	rest, ok := strings.CutPrefix(strings.Trim(r.Path, "/"), "song/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// IsAddPage reports whether the route is the "add a song" form.
func (r Route) IsAddPage() bool {
	return strings.Trim(r.Path, "/") == "add"
}

// SongPath is the detail route of a song.
func SongPath(id string) string {
	return "/song/" + id
}

// EntitySelector matches listing elements that represent the given song.
func EntitySelector(id string) string {
	return `[data-song-id="` + strings.ReplaceAll(id, `"`, `\"`) + `"]`
}
