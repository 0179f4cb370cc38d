package app

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// Hub fans attempt events out to in-process subscribers of a quiz.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel of events for quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(quizID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[quizID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, quizID)
		}
	}
	return ch, cancel
}

// Notify never blocks: a full subscriber loses its oldest pending event.
func (h *Hub) Notify(_ context.Context, event domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[event.QuizID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Subscribers reports how many subscribers a quiz has.
func (h *Hub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[quizID])
}
