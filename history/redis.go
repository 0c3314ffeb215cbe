package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/FilipGjorgjeski/klepetalnica/relay"
)

// Redis archives chat events in a capped Redis list per room, newest
// first. The store is shared by all instances, so history survives
// any single instance and reflects cluster-wide traffic.
type Redis struct {
	client *redis.Client
	limit  int64
}

func NewRedis(client *redis.Client, limit int) *Redis {
	if limit <= 0 {
		limit = 100
	}
	return &Redis{client: client, limit: int64(limit)}
}

func historyKey(roomID string) string {
	return "rooms:" + roomID + ":history"
}

func (r *Redis) AppendChat(ctx context.Context, ev relay.RoomEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("history marshal: %w", err)
	}
	key := historyKey(ev.RoomID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, r.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *Redis) Recent(ctx context.Context, roomID string, limit int) ([]relay.RoomEvent, error) {
	if limit <= 0 || int64(limit) > r.limit {
		limit = int(r.limit)
	}
	raw, err := r.client.LRange(ctx, historyKey(roomID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("history range: %w", err)
	}
	events := make([]relay.RoomEvent, 0, len(raw))
	for _, item := range raw {
		var ev relay.RoomEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			// A corrupt entry is skipped, not fatal for the whole read.
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
