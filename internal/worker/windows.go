package worker

import (
	"github.com/tempoapp/tempo-worker/internal/push"
)

// OpenWindowPayload asks connected tabs to open a URL.
type OpenWindowPayload struct {
	URL string `json:"url"`
}

// WindowRegistry relays open-window requests from notification clicks to
// connected tabs over the broadcast bus. The server cannot enumerate tab
// URLs, so Clients is always empty and body clicks fall through to
// OpenWindow.
type WindowRegistry struct {
	bus *Bus
}

// NewWindowRegistry creates a WindowRegistry over the given bus.
func NewWindowRegistry(bus *Bus) *WindowRegistry {
	return &WindowRegistry{bus: bus}
}

func (r *WindowRegistry) Clients() []push.Client { return nil }

// OpenWindow broadcasts an OPEN_WINDOW message. With no tab connected
// the message is dropped, matching a notification click with the app
// closed and push delivery unavailable.
func (r *WindowRegistry) OpenWindow(url string) error {
	r.bus.BroadcastPayload(MessageOpenWindow, OpenWindowPayload{URL: url})
	return nil
}
