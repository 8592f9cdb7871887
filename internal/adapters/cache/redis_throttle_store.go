package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/clinicore/session-lease-service/internal/ports"
	"github.com/redis/go-redis/v9"
)

// RedisThrottleStore tracks invalid-token presentations per source address.
// Counting in Redis keeps the hot rejection path off Postgres entirely.
type RedisThrottleStore struct {
	client *redis.Client
}

func NewRedisThrottleStore(client *redis.Client) *RedisThrottleStore {
	return &RedisThrottleStore{client: client}
}

func (s *RedisThrottleStore) Get(ctx context.Context, source string) (ports.ThrottleState, error) {
	data, err := s.client.HGetAll(ctx, "lease:throttle:"+source).Result()
	if err != nil {
		return ports.ThrottleState{}, err
	}
	if len(data) == 0 {
		return ports.ThrottleState{}, nil
	}

	state := ports.ThrottleState{}
	if raw, ok := data["failure_count"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			state.FailureCount = n
		}
	}
	if raw, ok := data["cooldown_until"]; ok && raw != "" {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && unix > 0 {
			t := time.Unix(unix, 0).UTC()
			state.CooldownUntil = &t
		}
	}
	return state, nil
}

func (s *RedisThrottleStore) RecordFailure(ctx context.Context, source string, now time.Time, threshold int, window, cooldown time.Duration) (ports.ThrottleState, error) {
	redisKey := "lease:throttle:" + source

	count, err := s.client.HIncrBy(ctx, redisKey, "failure_count", 1).Result()
	if err != nil {
		return ports.ThrottleState{}, err
	}

	state := ports.ThrottleState{FailureCount: int(count)}
	if int(count) >= threshold {
		cooldownUntil := now.Add(cooldown).UTC()
		_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, redisKey, "cooldown_until", cooldownUntil.Unix())
			p.Expire(ctx, redisKey, cooldown+window)
			return nil
		})
		if err != nil {
			return ports.ThrottleState{}, err
		}
		state.CooldownUntil = &cooldownUntil
		return state, nil
	}

	// The counter only survives for the rolling window; a quiet source resets.
	_ = s.client.Expire(ctx, redisKey, window).Err()
	return state, nil
}

func (s *RedisThrottleStore) Clear(ctx context.Context, source string) error {
	return s.client.Del(ctx, "lease:throttle:"+source).Err()
}
