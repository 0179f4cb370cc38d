package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// EventPublisher publishes attempt events on quiz:events:{quizID} so that
// other instances can refresh their live leaderboards.
type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Notify(ctx context.Context, event domain.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, EventChannel(event.QuizID), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Forward relays events published on quiz:events:* into next until ctx is done.
func (p *EventPublisher) Forward(ctx context.Context, next app.Notifier) error {
	sub := p.client.PSubscribe(ctx, EventChannel("*"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			_ = next.Notify(ctx, event)
		}
	}
}

// EventChannel is the pub/sub channel for a quiz's events.
func EventChannel(quizID string) string {
	return "quiz:events:" + quizID
}
