package audit_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/d9705996/protestpro/internal/audit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	pub, err := audit.NewRedisPublisher(ctx, client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	require.NoError(t, pub.Publish(ctx, audit.Event{
		Type:     audit.EventUserErasure,
		ActorID:  "admin-1",
		TargetID: "user-1",
		Success:  true,
		Details:  map[string]int{"properties": 2},
	}))

	msgs, err := client.XRange(ctx, audit.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	v := msgs[0].Values
	assert.Equal(t, "user_erasure", v["type"])
	assert.Equal(t, "admin-1", v["actor_id"])
	assert.Equal(t, "user-1", v["target_id"])
	assert.Equal(t, "true", v["success"])
	assert.JSONEq(t, `{"properties":2}`, v["details"].(string))
}

func TestNewRedisPublisher_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := audit.NewRedisPublisher(context.Background(), redis.NewClient(&redis.Options{Addr: addr}))
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := audit.LogPublisher{Log: slog.New(slog.NewJSONHandler(&buf, nil))}

	require.NoError(t, pub.Publish(context.Background(), audit.Event{
		Type: audit.EventUserErasure, TargetID: "user-2", Error: "profile not found",
	}))
	assert.Contains(t, buf.String(), `"target_id":"user-2"`)
	assert.Contains(t, buf.String(), `"error":"profile not found"`)
}

func TestPublish_RejectsUnencodableDetails(t *testing.T) {
	pub := audit.LogPublisher{Log: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	err := pub.Publish(context.Background(), audit.Event{Type: "x", Details: make(chan int)})
	assert.Error(t, err)
}
