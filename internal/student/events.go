package student

import (
	"context"
	"strconv"
	"time"
)

const (
	EventRegistered = "student.registered"
	EventUpdated    = "student.updated"
	EventDeleted    = "student.deleted"
)

// Event is published after a successful write. It never carries the password.
type Event struct {
	Type       string    `json:"type"`
	StudentID  int       `json:"studentId"`
	Username   string    `json:"username,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher interface for messaging (NATS/Kafka)
type Publisher interface {
	SendMessage(ctx context.Context, key string, value interface{}) error
}

func (s *service) publish(ctx context.Context, eventType string, id int, username string) {
	if s.publisher == nil {
		return
	}

	event := Event{
		Type:       eventType,
		StudentID:  id,
		Username:   username,
		OccurredAt: s.now().UTC(),
	}

	if err := s.publisher.SendMessage(ctx, strconv.Itoa(id), event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish student event", "type", eventType, "student_id", id, "error", err)
	}
}
