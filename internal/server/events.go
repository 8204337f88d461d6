package server

import (
	"net/http"

	"github.com/gokatarajesh/notes-quiz/internal/logging"
	"github.com/gokatarajesh/notes-quiz/internal/quiz"
	ws "github.com/gokatarajesh/notes-quiz/pkg/http/ws"
)

// events streams session_update and result_updated for one session. The
// current view is sent immediately after the upgrade.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	logger := logging.FromContext(r.Context()).With().Str("session_id", c.ID()).Logger()

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(raw, logger)
	h.deps.Hub.Subscribe(c.ID(), conn)
	go conn.WritePump()

	if msg, err := ws.NewMessage(quiz.EventSessionUpdate, c.ID(), c.View()); err == nil {
		_ = conn.Send(msg)
	}

	conn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypePing:
			return conn.Send(ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
		default:
			reply, err := ws.NewMessage(ws.TypeError, c.ID(), ws.ErrorPayload{Code: "unknown_message_type", Message: "unsupported message type"})
			if err != nil {
				return err
			}
			reply.RequestID = msg.RequestID
			return conn.Send(reply)
		}
	})
	h.deps.Hub.Unsubscribe(c.ID(), conn)
}
