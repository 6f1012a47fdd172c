// Package cache keeps resolved free slots in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gymbooking/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix = "gymbooking:slots:"
	genPrefix = "gymbooking:slotgen:"

	// initialGeneration stands for a trainer day that was never invalidated.
	initialGeneration = "0"
)

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// SlotCache stores free slots per trainer and date in one hash keyed by
// service id, so a booking change drops every service's entry at once.
//
// Each trainer day also carries a generation token that Invalidate replaces.
// Get reports the token seen before the caller reads bookings and Set only
// writes while that token is still current, so a result computed from
// bookings read before an invalidation is never stored after it.
// A nil *SlotCache is a valid, always-missing cache.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewSlotCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *SlotCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &SlotCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "slot_cache").Logger(),
	}
}

func key(trainerID int64, date model.Date) string {
	return keyPrefix + strconv.FormatInt(trainerID, 10) + ":" + date.String()
}

func genKey(trainerID int64, date model.Date) string {
	return genPrefix + strconv.FormatInt(trainerID, 10) + ":" + date.String()
}

// Get returns cached slots and the current generation of the trainer day.
// Any Redis error counts as a miss with an empty generation, which Set
// refuses.
func (c *SlotCache) Get(ctx context.Context, trainerID int64, date model.Date, serviceID int64) ([]model.TimeOfDay, string, bool) {
	if c == nil {
		return nil, "", false
	}

	pipe := c.client.Pipeline()
	genCmd := pipe.Get(ctx, genKey(trainerID, date))
	valCmd := pipe.HGet(ctx, key(trainerID, date), strconv.FormatInt(serviceID, 10))
	_, _ = pipe.Exec(ctx)

	gen, err := genCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
		gen = initialGeneration
	case err != nil:
		c.logger.Warn().Err(err).Msg("slot cache read failed")
		return nil, "", false
	}

	val, err := valCmd.Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("slot cache read failed")
			return nil, "", false
		}
		return nil, gen, false
	}
	var slots []model.TimeOfDay
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, gen, false
	}
	return slots, gen, true
}

// Set stores slots if the trainer day is still at generation gen and
// reports whether it did.
func (c *SlotCache) Set(ctx context.Context, trainerID int64, date model.Date, serviceID int64, gen string, slots []model.TimeOfDay) bool {
	if c == nil || gen == "" {
		return false
	}
	if slots == nil {
		slots = []model.TimeOfDay{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return false
	}

	k, gk := key(trainerID, date), genKey(trainerID, date)
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, gk).Result()
		switch {
		case errors.Is(err, redis.Nil):
			current = initialGeneration
		case err != nil:
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, strconv.FormatInt(serviceID, 10), data)
			pipe.Expire(ctx, k, c.ttl)
			return nil
		})
		stored = err == nil
		return err
	}, gk)

	switch {
	case err != nil && !errors.Is(err, redis.TxFailedErr):
		c.logger.Warn().Err(err).Msg("slot cache write failed")
	case !stored:
		c.logger.Debug().
			Int64("trainer_id", trainerID).
			Str("date", date.String()).
			Msg("stale slot cache write skipped")
	}
	return stored
}

// Invalidate drops every cached entry for the trainer on date and moves the
// trainer day to a new generation.
func (c *SlotCache) Invalidate(ctx context.Context, trainerID int64, date model.Date) error {
	if c == nil {
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, genKey(trainerID, date), uuid.NewString(), c.ttl)
	pipe.Del(ctx, key(trainerID, date))
	_, err := pipe.Exec(ctx)
	return err
}

// Flush drops all cached slots. Used when the catalog changes.
func (c *SlotCache) Flush(ctx context.Context) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
