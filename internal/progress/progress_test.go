package progress

import (
	"testing"

	"github.com/lotas/sensiblelive/internal/types"
	"github.com/lotas/sensiblelive/internal/view"
)

const page = `<html><body><progress id="main-progress" class="progress"></progress></body></html>`

func TestIndicatorDefaultsToHidden(t *testing.T) {
	ind := New()
	p := view.NewPage("/", view.MustParse(page))
	ind.Apply(p)
	if !p.HasClass(Selector, HiddenClass) {
		t.Error("indicator must start hidden")
	}
}

func TestIndicatorFollowsLatestEvent(t *testing.T) {
	ind := New()
	p := view.NewPage("/", view.MustParse(page))

	ind.Set(types.ChangeEvent{Kind: types.KindProgressStarted})
	ind.Apply(p)
	if p.HasClass(Selector, HiddenClass) {
		t.Error("indicator must be visible while busy")
	}

	ind.Set(types.ChangeEvent{Kind: types.KindSongAdded, EntityID: "x"})
	if !ind.Visible() {
		t.Error("song events must not change the busy state")
	}

	ind.Set(types.ChangeEvent{Kind: types.KindProgressEnded, Error: "download failed"})
	ind.Apply(p)
	if !p.HasClass(Selector, HiddenClass) {
		t.Error("indicator must hide after progress-end")
	}
	if ind.LastError() != "download failed" {
		t.Errorf("LastError = %q", ind.LastError())
	}
}

func TestIndicatorReappliesToFreshPage(t *testing.T) {
	ind := New()
	ind.Set(types.ChangeEvent{Kind: types.KindProgressStarted})

	// A swapped-in document arrives with the indicator hidden again.
	p := view.NewPage("/songs", view.MustParse(`<html><body><progress id="main-progress" class="is-hidden"></progress></body></html>`))
	ind.Apply(p)
	if p.HasClass(Selector, HiddenClass) {
		t.Error("busy state not reapplied to the new document")
	}
}
