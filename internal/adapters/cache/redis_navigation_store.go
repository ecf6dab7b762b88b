package cache

import (
	"artisan-delivery/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultSnapshotTTL = time.Hour

	navigationPrefix = "nav:session:"

	// saveAttempts bounds retries when another writer touches the key
	// between WATCH and EXEC.
	saveAttempts = 5
)

// RedisNavigationStore keeps the latest navigation snapshot per user so any
// instance can answer status queries.
type RedisNavigationStore struct {
	client *redis.Client
	ttl    time.Duration

	// beforeCommit runs between the read and the transaction; tests use it
	// to interleave a competing write.
	beforeCommit func(attempt int)
}

func NewRedisNavigationStore(client *redis.Client, ttl time.Duration) *RedisNavigationStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisNavigationStore{client: client, ttl: ttl}
}

// Save overwrites the stored snapshot unless it is older (by Seq) than the
// one already stored for the same session.
func (s *RedisNavigationStore) Save(ctx context.Context, snap domain.NavigationSnapshot) error {
	if snap.UserID == "" {
		return errors.New("save navigation snapshot: user id is empty")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save navigation snapshot: encode: %w", err)
	}

	key := navigationPrefix + snap.UserID

	for attempt := 1; attempt <= saveAttempts; attempt++ {
		err = s.saveOnce(ctx, key, snap, data, attempt)
		if !errors.Is(err, redis.TxFailedErr) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("save navigation snapshot user=%s: %w", snap.UserID, err)
	}
	return nil
}

// saveOnce runs one optimistic WATCH/MULTI/EXEC round. It returns
// redis.TxFailedErr when the key changed underneath it.
func (s *RedisNavigationStore) saveOnce(ctx context.Context, key string, snap domain.NavigationSnapshot, data []byte, attempt int) error {
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var old domain.NavigationSnapshot
			if json.Unmarshal(prev, &old) == nil && old.SessionID == snap.SessionID && old.Seq > snap.Seq {
				return nil
			}
		}

		if s.beforeCommit != nil {
			s.beforeCommit(attempt)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
}

func (s *RedisNavigationStore) Get(ctx context.Context, userID string) (domain.NavigationSnapshot, bool, error) {
	data, err := s.client.Get(ctx, navigationPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.NavigationSnapshot{}, false, nil
		}
		return domain.NavigationSnapshot{}, false, fmt.Errorf("get navigation snapshot user=%s: %w", userID, err)
	}

	var snap domain.NavigationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.NavigationSnapshot{}, false, fmt.Errorf("get navigation snapshot user=%s: decode: %w", userID, err)
	}
	return snap, true, nil
}

func (s *RedisNavigationStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, navigationPrefix+userID).Err()
}
