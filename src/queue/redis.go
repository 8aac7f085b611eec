package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edge-sync/state-server/src/types"
)

// recordTTLSlack keeps the Redis record alive slightly longer than its
// newest entry so per-entry expiry is always evaluated before the
// record itself vanishes.
const recordTTLSlack = time.Minute

// drainScript atomically reads and deletes a backlog. LRANGE+DEL must
// be one step so two pollers cannot both receive the same entries.
var drainScript = redis.NewScript(`
local entries = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return entries
`)

// RedisQueue implements Queue on Redis lists. Appends use RPUSH+LTRIM
// in one transaction, so concurrent producers for the same client never
// lose entries to a read-modify-write race.
type RedisQueue struct {
	client    *redis.Client
	prefix    string
	maxLength int
	logger    zerolog.Logger
	clock     func() time.Time
}

// NewRedisQueue creates a queue over an existing Redis client. Keys are
// namespaced under prefix; maxLength <= 0 selects DefaultMaxLength.
func NewRedisQueue(client *redis.Client, prefix string, maxLength int, logger zerolog.Logger) *RedisQueue {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &RedisQueue{
		client:    client,
		prefix:    prefix,
		maxLength: maxLength,
		logger:    logger.With().Str("component", "redis-queue").Logger(),
		clock:     time.Now,
	}
}

func (q *RedisQueue) key(clientID string) string {
	return q.prefix + ":" + actionKey(clientID)
}

func (q *RedisQueue) Enqueue(ctx context.Context, clientID string, action types.Action, ttl time.Duration) error {
	now := q.clock()
	entry := types.QueuedAction{
		Action:    action,
		QueuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queued action: %w", err)
	}

	recordTTL := recordTTLSlack
	if ttl > 0 {
		recordTTL += ttl
	}

	key := q.key(clientID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-q.maxLength), -1)
	pipe.Expire(ctx, key, recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis enqueue %s: %w", clientID, err)
	}

	q.logger.Debug().
		Str("client_id", clientID).
		Str("type", string(action.Type)).
		Msg("action queued")
	return nil
}

func (q *RedisQueue) Drain(ctx context.Context, clientID string) ([]types.Action, error) {
	raw, err := drainScript.Run(ctx, q.client, []string{q.key(clientID)}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis drain %s: %w", clientID, err)
	}

	now := q.clock()
	entries := make([]types.QueuedAction, 0, len(raw))
	for _, item := range raw {
		var entry types.QueuedAction
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			q.logger.Warn().Err(err).Str("client_id", clientID).Msg("dropping undecodable entry")
			continue
		}
		entries = append(entries, entry)
	}

	actions := filterLive(entries, now)
	if len(actions) > 0 {
		q.logger.Debug().
			Str("client_id", clientID).
			Int("count", len(actions)).
			Msg("backlog drained")
	}
	return actions, nil
}
