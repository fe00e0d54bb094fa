package invalidate

import (
	"strings"

	"github.com/lotas/sensiblelive/internal/applog"
	"github.com/lotas/sensiblelive/internal/session"
	"github.com/lotas/sensiblelive/internal/types"
	"github.com/lotas/sensiblelive/internal/view"
)

// AddInputSelector is the link field of the add page.
const AddInputSelector = "#searchTerm"

// Action is what the caller has to do after an event was handled.
type Action int

const (
	// ActionNone means the event needed no page change.
	ActionNone Action = iota
	// ActionPatch means the page was changed in place and should be redrawn.
	ActionPatch
	// ActionRemove means an entity element was removed in place.
	ActionRemove
	// ActionRefresh asks for a same-URL reload of the current location.
	ActionRefresh
	// ActionCoalesced means a refresh was wanted but one is already pending.
	ActionCoalesced
	// ActionReload asks for an unconditional reload after a reconnect.
	ActionReload
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPatch:
		return "patch"
	case ActionRemove:
		return "remove"
	case ActionRefresh:
		return "refresh"
	case ActionCoalesced:
		return "coalesced"
	case ActionReload:
		return "reload"
	}
	return "unknown"
}

// NeedsReload reports whether the caller must start a reload navigation.
func (a Action) NeedsReload() bool {
	return a == ActionRefresh || a == ActionReload
}

// Controller decides, per push event, whether the live page is patched in
// place or refreshed. The route is read from the page on every call.
type Controller struct {
	page  *view.Page
	state *session.State

	// pending is the location a refresh was requested for, until Settle.
	pending string
}

func New(page *view.Page, state *session.State) *Controller {
	return &Controller{page: page, state: state}
}

// Handle applies ev to the page and session state.
func (c *Controller) Handle(ev types.ChangeEvent) Action {
	route := c.page.Route()
	var action Action

	switch {
	case ev.Kind == types.KindSongDeleted:
		c.state.Changed.Forget(ev.EntityID)
		switch {
		case !route.IsListing:
			action = ActionNone
		case c.page.Remove(types.EntitySelector(ev.EntityID)) > 0:
			action = ActionRemove
		default:
			action = c.refresh()
		}

	case ev.Kind == types.KindSongAdded || ev.Kind == types.KindSongEdited:
		c.state.Changed.Touch(ev.EntityID)
		id, onDetail := route.SongID()
		switch {
		case route.IsListing:
			action = c.refresh()
		case onDetail && id == ev.EntityID:
			action = c.refresh()
		default:
			action = ActionNone
		}

	case ev.Kind.IsProgress():
		c.state.Progress.Set(ev)
		c.state.Progress.Apply(c.page)
		action = ActionPatch
		if route.IsAddPage() && strings.TrimSpace(c.page.Value(AddInputSelector)) == "" {
			action = c.refresh()
		}

	case ev.Kind == types.KindReconnected:
		c.pending = c.page.Location()
		action = ActionReload
	}

	applog.Info("invalidate.handle", "type", ev.Kind.String(), "id", ev.EntityID,
		"route", route.Path, "action", action.String())
	return action
}

func (c *Controller) refresh() Action {
	loc := c.page.Location()
	if c.pending == loc {
		return ActionCoalesced
	}
	c.pending = loc
	return ActionRefresh
}

// Pending reports whether a refresh is outstanding.
func (c *Controller) Pending() bool {
	return c.pending != ""
}

// Settle clears the pending refresh. Call it when a navigation completes or
// a refresh fails.
func (c *Controller) Settle() {
	c.pending = ""
}
