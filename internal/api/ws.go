package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/auth"
	"github.com/finledger/collab/internal/domain"
	"github.com/finledger/collab/internal/subscription"
)

// SubscribeHandler upgrades GET /subscribe?channel=… requests to a websocket
// carrying the caller's filtered change stream.
type SubscribeHandler struct {
	gateway  *subscription.Gateway
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewSubscribeHandler creates the websocket subscription handler.
func NewSubscribeHandler(gateway *subscription.Gateway, logger zerolog.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "subscribe_handler").Logger(),
	}
}

// eventEnvelope frames one event on the wire.
type eventEnvelope struct {
	Channel string       `json:"channel"`
	Event   domain.Event `json:"event"`
}

func (h *SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	workspaces, ok := auth.WorkspacesFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	channel, err := domain.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	stream, ok := h.gateway.Open(r.Context(), channel, workspaces, userID)
	if !ok {
		// Over the cap: the client gets a cleanly closed socket and no
		// events, not an error.
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return
	}
	defer stream.Close()

	// Reader goroutine: the only way to notice a client disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			return
		case event, open := <-stream.Events():
			if !open {
				return
			}
			envelope := eventEnvelope{Channel: string(event.Channel()), Event: event}
			if err := conn.WriteJSON(envelope); err != nil {
				h.logger.Debug().Err(err).
					Str("user_id", userID.String()).
					Msg("subscriber write failed, closing stream")
				return
			}
		}
	}
}
