// Package session holds the state that lives for one client session: from
// start-up until the program exits. It is built once by New and passed by
// reference to the components that read or write it.
package session

import (
	"github.com/lotas/sensiblelive/internal/cachebust"
	"github.com/lotas/sensiblelive/internal/progress"
	"github.com/lotas/sensiblelive/internal/types"
)

// State is the mutable session state. Only the event loop touches it.
type State struct {
	Changed  *cachebust.Registry
	Progress *progress.Indicator
	Redirect Redirect
	Scroll   types.ScrollMemo
}

// New creates the session state at session start.
func New() *State {
	return &State{
		Changed:  cachebust.New(),
		Progress: progress.New(),
	}
}

// Redirect is the pending canonical location discovered while receiving a
// document. At most one is pending; a new one overwrites the old.
type Redirect struct {
	target string
}

// Set records a pending redirect.
func (r *Redirect) Set(target string) {
	r.target = target
}

// Take consumes and clears the pending target.
func (r *Redirect) Take() (string, bool) {
	t := r.target
	r.target = ""
	return t, t != ""
}
