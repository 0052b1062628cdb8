// Package audit records security-relevant actions, such as account erasure,
// to a Redis stream or to the structured log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream is the Redis stream audit events are appended to.
const Stream = "audit:events"

// Event types.
const (
	EventUserErasure    = "user_erasure"
	EventDocumentExport = "document_export"
)

// Event is one audit record. Details must be JSON-encodable.
type Event struct {
	Type     string
	ActorID  string
	TargetID string
	Success  bool
	Error    string
	Details  any
	At       time.Time
}

// Publisher records audit events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher appends events to a Redis stream with XADD.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher creates a publisher on the given client and pings it.
func NewRedisPublisher(ctx context.Context, client *redis.Client) (*RedisPublisher, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPublisher{client: client, stream: Stream}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	values, err := fields(ev)
	if err != nil {
		return err
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: p.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func fields(ev Event) (map[string]any, error) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	details := []byte("null")
	if ev.Details != nil {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return nil, fmt.Errorf("encode audit details: %w", err)
		}
		details = b
	}
	return map[string]any{
		"type":      ev.Type,
		"actor_id":  ev.ActorID,
		"target_id": ev.TargetID,
		"success":   fmt.Sprint(ev.Success),
		"error":     ev.Error,
		"details":   string(details),
		"at":        ev.At.Format(time.RFC3339Nano),
	}, nil
}

// LogPublisher writes events to the log. It is used when Redis is not
// configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, ev Event) error {
	values, err := fields(ev)
	if err != nil {
		return err
	}
	p.Log.InfoContext(ctx, "audit event",
		"type", values["type"],
		"actor_id", values["actor_id"],
		"target_id", values["target_id"],
		"success", ev.Success,
		"error", values["error"],
		"details", values["details"],
	)
	return nil
}
