package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/FilipGjorgjeski/klepetalnica/relay"
)

const opTimeout = 2 * time.Second

// Redis mirrors local session and membership state into shared Redis
// keys for cluster-wide inspection. Every write is best-effort:
// failures are logged and swallowed, and nothing in the relay reads
// these keys back.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedis(client *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (p *Redis) SessionConnected(ctx context.Context, sessionID, displayName string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	err := p.client.HSet(ctx, relay.SessionInfoKey(sessionID),
		"displayName", displayName,
		"connectedAt", time.Now().UnixMilli(),
	).Err()
	p.report(err, "session connect mirror")
}

func (p *Redis) SessionDisconnected(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	err := p.client.Del(ctx,
		relay.SessionInfoKey(sessionID),
		relay.SessionRoomKey(sessionID),
	).Err()
	p.report(err, "session disconnect mirror")
}

func (p *Redis) Joined(ctx context.Context, roomID, sessionID string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, relay.RoomParticipantsKey(roomID), sessionID)
	pipe.Set(ctx, relay.SessionRoomKey(sessionID), roomID, 0)
	pipe.HSet(ctx, relay.RoomInfoKey(roomID), "lastJoinAt", time.Now().UnixMilli())
	_, err := pipe.Exec(ctx)
	p.report(err, "join mirror")
}

func (p *Redis) Left(ctx context.Context, roomID, sessionID string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	pipe := p.client.TxPipeline()
	pipe.SRem(ctx, relay.RoomParticipantsKey(roomID), sessionID)
	pipe.Del(ctx, relay.SessionRoomKey(sessionID))
	_, err := pipe.Exec(ctx)
	p.report(err, "leave mirror")
}

func (p *Redis) report(err error, op string) {
	if err != nil {
		p.logger.Warn().Err(err).Msg(op + " failed")
	}
}
