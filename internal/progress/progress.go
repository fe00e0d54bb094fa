package progress

import "github.com/lotas/sensiblelive/internal/types"

const (
	// Selector is the indicator element in every page.
	Selector = "#main-progress"
	// HiddenClass hides the indicator.
	HiddenClass = "is-hidden"
)

// Toggler is the part of the live page the indicator writes to.
type Toggler interface {
	ToggleClass(sel, class string, on bool) int
}

// Indicator remembers the latest busy state. The page element is replaced by
// every navigation, so the state must be reapplied afterwards.
type Indicator struct {
	last    types.Kind
	lastErr string
}

// New returns an indicator in the not-busy state.
func New() *Indicator {
	return &Indicator{last: types.KindProgressEnded}
}

// Set records a progress event. Other kinds are ignored.
func (i *Indicator) Set(ev types.ChangeEvent) {
	if !ev.Kind.IsProgress() {
		return
	}
	i.last = ev.Kind
	if ev.Kind == types.KindProgressEnded {
		i.lastErr = ev.Error
	} else {
		i.lastErr = ""
	}
}

// Visible reports whether a background job is running.
func (i *Indicator) Visible() bool {
	return i.last == types.KindProgressStarted
}

// LastError is the failure reported by the most recent progress-end, if any.
func (i *Indicator) LastError() string {
	return i.lastErr
}

// Apply writes the remembered state to the page.
func (i *Indicator) Apply(p Toggler) {
	p.ToggleClass(Selector, HiddenClass, !i.Visible())
}
