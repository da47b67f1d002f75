// Package redis mirrors room membership into Redis sets so operators
// can inspect presence from outside the process. The mirror is
// write-only from the server's point of view: the in-memory registry
// stays the single authority and the server never reads these keys.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindguard/signaling-server/config"
)

const memberTTL = 24 * time.Hour

var ctx = context.Background()

// Mirror publishes membership changes. A nil *Mirror is valid and
// does nothing, so callers need no enabled/disabled branching.
type Mirror struct {
	client *redis.Client
}

// Connect opens the Redis connection for the mirror.
func Connect(cfg config.RedisConfig) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Mirror{client: client}, nil
}

func (m *Mirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// AddMember records connID in the room's peer set.
func (m *Mirror) AddMember(roomID, connID string) {
	if m == nil || m.client == nil {
		return
	}
	key := peersKey(roomID)
	if err := m.client.SAdd(ctx, key, connID).Err(); err != nil {
		slog.Warn("redis mirror add failed", "room", roomID, "conn", connID, "error", err)
		return
	}
	m.client.Expire(ctx, key, memberTTL)
}

// RemoveMember drops connID from the room's peer set, deleting the
// key once the set empties so the mirror shows no empty rooms either.
func (m *Mirror) RemoveMember(roomID, connID string) {
	if m == nil || m.client == nil {
		return
	}
	key := peersKey(roomID)
	if err := m.client.SRem(ctx, key, connID).Err(); err != nil {
		slog.Warn("redis mirror remove failed", "room", roomID, "conn", connID, "error", err)
		return
	}
	if remaining, err := m.client.SCard(ctx, key).Result(); err == nil && remaining == 0 {
		m.client.Del(ctx, key)
	}
}

func peersKey(roomID string) string {
	return "room:" + roomID + ":peers"
}
