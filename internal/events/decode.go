package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lotas/sensiblelive/internal/types"
)

// ErrUnknownType is returned for well-formed frames whose type the client
// does not handle. Such frames are ignored, not treated as malformed.
var ErrUnknownType = errors.New("unknown event type")

// IncomingMsg is a frame from the server's push channel.
type IncomingMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wireData struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// Decode converts a raw frame into a ChangeEvent.
func Decode(data []byte) (types.ChangeEvent, error) {
	var msg IncomingMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.ChangeEvent{}, fmt.Errorf("parse frame: %w", err)
	}
	if strings.TrimSpace(msg.Type) == "" {
		return types.ChangeEvent{}, fmt.Errorf("parse frame: missing type")
	}

	kind := types.ParseKind(msg.Type)
	if kind == types.KindUnknown {
		return types.ChangeEvent{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}

	var d wireData
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return types.ChangeEvent{}, fmt.Errorf("parse %s data: %w", msg.Type, err)
		}
	}

	ev := types.ChangeEvent{Kind: kind, EntityID: d.ID, Error: d.Error}
	if kind.IsSong() && ev.EntityID == "" {
		return types.ChangeEvent{}, fmt.Errorf("parse %s: missing song id", msg.Type)
	}
	return ev, nil
}
