package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-grocery/internal/notification/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	feedKeyPrefix      = "notifications:"
	maxMarkReadRetries = 5
)

var tracer = otel.Tracer("notification-feed-store")

// RedisFeedStore stores each feed as a capped list of JSON documents so
// several storefront instances share one view of every feed.
type RedisFeedStore struct {
	client *redis.Client
	limit  int64
}

func NewRedisFeedStore(client *redis.Client, limit int64) *RedisFeedStore {
	return &RedisFeedStore{client: client, limit: limit}
}

func (s *RedisFeedStore) redisKey(key string) string {
	return feedKeyPrefix + key
}

func (s *RedisFeedStore) Append(ctx context.Context, key string, n domain.Notification) error {
	ctx, span := tracer.Start(ctx, "RedisFeedStore.Append")
	defer span.End()
	span.SetAttributes(attribute.String("feed.key", key), attribute.Int64("notification.id", n.ID))

	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	rk := s.redisKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, rk, raw)
		if s.limit > 0 {
			pipe.LTrim(ctx, rk, 0, s.limit-1)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func (s *RedisFeedStore) List(ctx context.Context, key string) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "RedisFeedStore.List")
	defer span.End()
	span.SetAttributes(attribute.String("feed.key", key))

	raws, err := s.client.LRange(ctx, s.redisKey(key), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return decodeFeed(raws)
}

func decodeFeed(raws []string) ([]domain.Notification, error) {
	result := make([]domain.Notification, 0, len(raws))
	for _, raw := range raws {
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		result = append(result, n)
	}
	return result, nil
}

func (s *RedisFeedStore) MarkRead(ctx context.Context, key string, id int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "RedisFeedStore.MarkRead")
	defer span.End()
	span.SetAttributes(attribute.String("feed.key", key), attribute.Int64("notification.id", id))

	rk := s.redisKey(key)
	found := false

	txf := func(tx *redis.Tx) error {
		found = false
		raws, err := tx.LRange(ctx, rk, 0, -1).Result()
		if err != nil {
			return err
		}

		for i, raw := range raws {
			var n domain.Notification
			if err := json.Unmarshal([]byte(raw), &n); err != nil {
				return fmt.Errorf("decode notification: %w", err)
			}
			if n.ID != id {
				continue
			}
			found = true
			if n.Read {
				return nil
			}

			n.Read = true
			updated, err := json.Marshal(n)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LSet(ctx, rk, int64(i), updated)
				return nil
			})
			return err
		}
		return nil
	}

	for range maxMarkReadRetries {
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return false, fmt.Errorf("mark notification read: %w", err)
		}
		return found, nil
	}

	err := fmt.Errorf("mark notification read: %w", redis.TxFailedErr)
	span.RecordError(err)
	return false, err
}

func (s *RedisFeedStore) Clear(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "RedisFeedStore.Clear")
	defer span.End()

	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}

func (s *RedisFeedStore) Close() error {
	return s.client.Close()
}
