package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quiz-arena/internal/app"
	"quiz-arena/internal/broadcast"
	"quiz-arena/internal/domain"
)

// WSHandler bridges websocket clients to the session command interface and
// streams the session's ordered events back to them.
type WSHandler struct {
	service  *app.SessionService
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int      `json:"questionIndex"`
	AnswerIDs     []string `json:"answerIds"`
}

type cancelPayload struct {
	Reason string `json:"reason"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request, joins the participant (spectators pass
// spectate=1 and skip the join), subscribes to the session stream and runs
// the command loop until the connection drops.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	spectator := r.URL.Query().Get("spectate") == "1"
	if sessionID == "" || (!spectator && (userID == "" || displayName == "")) {
		http.Error(w, "missing sessionId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if !spectator {
		if _, err := h.service.Join(r.Context(), sessionID, userID, displayName); err != nil {
			_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		defer h.service.Leave(r.Context(), sessionID, userID)
	}

	events, cancel, err := h.service.Subscribe(r.Context(), sessionID, broadcast.DefaultBuffer)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Single writer goroutine: gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events.Events():
				if !ok {
					return
				}
				if ev.Type == domain.EventResync {
					// This client fell behind its catch-up buffer; hand it a
					// fresh snapshot instead of the lost history.
					ev = h.resyncEvent(sessionID, ev)
				}
				select {
				case send <- outboundMessage{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleCommand(r, sessionID, userID, spectator, inbound, send)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleCommand(r *http.Request, sessionID, userID string, spectator bool, inbound inboundMessage, send chan<- outboundMessage) {
	fail := func(msg string) {
		send <- outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
	}

	switch inbound.Type {
	case "answer":
		if spectator {
			fail("spectators cannot answer")
			return
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail("invalid answer payload")
			return
		}
		err := h.service.SubmitAnswer(r.Context(), sessionID, userID, domain.AnswerSubmission{
			QuestionIndex: payload.QuestionIndex,
			AnswerIDs:     payload.AnswerIDs,
		})
		if err != nil {
			fail(err.Error())
		}
	case "start":
		if err := h.service.Start(r.Context(), sessionID); err != nil {
			fail(err.Error())
		}
	case "cancel":
		var payload cancelPayload
		_ = json.Unmarshal(inbound.Payload, &payload)
		if payload.Reason == "" {
			payload.Reason = "cancelled by client"
		}
		if err := h.service.Cancel(r.Context(), sessionID, payload.Reason); err != nil {
			fail(err.Error())
		}
	default:
		fail("unsupported message type")
	}
}

func (h *WSHandler) resyncEvent(sessionID string, marker domain.Event) domain.Event {
	snap, err := h.service.Snapshot(context.Background(), sessionID)
	if err != nil {
		return marker
	}
	return domain.Event{
		Seq:       snap.Seq,
		SessionID: sessionID,
		Type:      domain.EventSnapshot,
		At:        marker.At,
		Payload:   snap,
	}
}
