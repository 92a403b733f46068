package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Grade event types.
const (
	GradeEventCompleted = "grading.completed"
	GradeEventFailed    = "grading.failed"
)

// GradeEvent is published for the gradebook after every grading run. It never
// carries submission code, prompts or feedback text.
type GradeEvent struct {
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	UserID        uint      `json:"user_id"`
	Outcome       string    `json:"outcome"`
	FinalScore    *float64  `json:"final_score,omitempty"`
	ScaledScore   *int      `json:"scaled_score,omitempty"`
	MaxScore      float64   `json:"max_score"`
	Attempts      int       `json:"attempts"`
	Strategy      string    `json:"strategy,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// GradeEventPublisher delivers grade events to downstream consumers.
type GradeEventPublisher interface {
	Publish(ctx context.Context, event GradeEvent) error
}

type brokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
}

// NewGradeEventPublisher fans events out to Redis pub/sub and NATS. Either broker
// may be nil; nil is returned when neither is configured.
func NewGradeEventPublisher(redisClient *redis.Client, redisChannel string, natsConn *nats.Conn, natsSubject string) GradeEventPublisher {
	publisher := &brokerPublisher{}
	if redisClient != nil && redisChannel != "" {
		publisher.redis = redisClient
		publisher.redisChannel = redisChannel
	}
	if natsConn != nil && natsSubject != "" {
		publisher.nats = natsConn
		publisher.natsSubject = natsSubject
	}
	if publisher.redis == nil && publisher.nats == nil {
		return nil
	}
	return publisher
}

func (p *brokerPublisher) Publish(ctx context.Context, event GradeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal grade event: %w", err)
	}

	var errs []error
	if p.redis != nil {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish: %w", err))
		}
	}
	if p.nats != nil {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			errs = append(errs, fmt.Errorf("nats publish: %w", err))
		}
	}
	return errors.Join(errs...)
}
