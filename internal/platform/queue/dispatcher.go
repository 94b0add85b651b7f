package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
)

// Message is one queued job reference.
type Message struct {
	Kind model.JobKind `json:"kind"`
	ID   string        `json:"id"`
}

func (m Message) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMessage parses a queue entry and rejects unknown kinds.
func DecodeMessage(raw string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	if !m.Kind.Valid() || m.ID == "" {
		return Message{}, fmt.Errorf("invalid queue message %q: %w", raw, common.ErrValidation)
	}
	return m, nil
}

// RedisDispatcher pushes job references onto a Redis list consumed with BRPOP.
type RedisDispatcher struct {
	rdb   *redis.Client
	queue string
}

func NewRedisDispatcher(rdb *redis.Client, queueName string) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb, queue: queueName}
}

func (d *RedisDispatcher) Enqueue(ctx context.Context, kind model.JobKind, id string) error {
	payload, err := Message{Kind: kind, ID: id}.Encode()
	if err != nil {
		return common.Errorf("failed to encode job message: %w", err)
	}
	if err := d.rdb.LPush(ctx, d.queue, payload).Err(); err != nil {
		return common.Errorf("failed to push job %s to Redis queue: %w", id, err)
	}
	return nil
}
