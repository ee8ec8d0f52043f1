package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const reminderQueueKey = "reminders:dispatch"

// ReminderQueue hands reminder jobs to the downstream dispatcher via a Redis
// sorted set scored by the fire timestamp. Dispatch workers pop due entries
// with ZRANGEBYSCORE; this side only enqueues.
type ReminderQueue struct {
	client *redis.Client
}

func NewReminderQueue(client *redis.Client) *ReminderQueue {
	return &ReminderQueue{client: client}
}

type reminderJob struct {
	Recipient    string          `json:"recipient"`
	Channel      string          `json:"channel"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

func (q *ReminderQueue) Enqueue(ctx context.Context, recipient, channel string, scheduledFor time.Time, payload []byte) error {
	job, err := json.Marshal(reminderJob{
		Recipient:    recipient,
		Channel:      channel,
		ScheduledFor: scheduledFor,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("marshal reminder job: %w", err)
	}

	err = q.client.ZAdd(ctx, reminderQueueKey, redis.Z{
		Score:  float64(scheduledFor.Unix()),
		Member: job,
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue reminder: %w", err)
	}

	return nil
}
