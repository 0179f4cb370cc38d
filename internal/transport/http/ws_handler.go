package http

import (
	"net/http"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// leaderboardStream upgrades to a websocket and pushes the ranked leaderboard
// of a quiz, first on connect and then each time an attempt is graded.
func (h *Handler) leaderboardStream(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	actor := ActorFromContext(r.Context())

	// Subscribe before the first read so no grading between the two is lost.
	updates, cancel := h.hub.Subscribe(quizID)
	defer cancel()

	lb, err := h.service.Leaderboard(r.Context(), actor, quizID, h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	// The client never sends anything useful; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.log.WithError(err).Debug("ws write error")
			return false
		}
		return true
	}

	if !send(outboundMessage[domain.Leaderboard]{Type: "leaderboard", Payload: lb}) {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-updates:
			if !ok {
				return
			}
			if event.Type != domain.EventQuizGraded {
				continue
			}
			lb, err := h.service.Leaderboard(r.Context(), actor, quizID, h.now())
			if err != nil {
				send(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				return
			}
			if !send(outboundMessage[domain.Leaderboard]{Type: "leaderboard", Payload: lb}) {
				return
			}
		}
	}
}
