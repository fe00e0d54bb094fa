package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/sensiblelive/internal/events"
	"github.com/lotas/sensiblelive/internal/nav"
	"github.com/lotas/sensiblelive/internal/suggest"
	"github.com/lotas/sensiblelive/internal/transport"
	"github.com/lotas/sensiblelive/internal/types"
)

const (
	addPath   = "/add?format=json"
	abortPath = "/abort?format=json"
)

// --- Messages ---

type navResultMsg struct{ result nav.Result }

type eventMsg struct{ ev types.ChangeEvent }

type eventsClosedMsg struct{}

type streamStoppedMsg struct{ err error }

type debounceMsg struct{ query string }

type suggestMsg struct {
	resp types.SearchResponse
	res  transport.Result
}

type blurMsg struct{ gen uint64 }

type mutationMsg struct {
	path string
	res  transport.Result
	next string
}

// --- Command helpers ---

func fetchPage(ctx context.Context, engine *nav.Engine, req nav.Request) tea.Cmd {
	return func() tea.Msg {
		return navResultMsg{result: engine.Fetch(ctx, req)}
	}
}

// listenEvents waits for the next push event. Update re-arms it after every
// event so exactly one listener is outstanding.
func listenEvents(ch <-chan types.ChangeEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func runStream(ctx context.Context, c *events.Client) tea.Cmd {
	if c == nil {
		return nil
	}
	return func() tea.Msg {
		return streamStoppedMsg{err: c.Run(ctx)}
	}
}

func debounce(query string, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return debounceMsg{query: query}
	})
}

func lookup(ctx context.Context, g suggest.Getter, query string) tea.Cmd {
	return func() tea.Msg {
		resp, res := suggest.Lookup(ctx, g, query)
		return suggestMsg{resp: resp, res: res}
	}
}

func blurAfter(gen uint64, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return blurMsg{gen: gen}
	})
}

// postMutation POSTs payload and asks for a navigation to next when the
// server accepts it.
func postMutation(ctx context.Context, b Backend, path string, payload any, next string) tea.Cmd {
	return func() tea.Msg {
		res := b.PostJSON(ctx, path, payload, nil)
		return mutationMsg{path: path, res: res, next: next}
	}
}
