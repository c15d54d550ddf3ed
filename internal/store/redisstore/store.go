// Package redisstore keeps live and archived intake sessions in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/voice-intake/internal/intake"
)

type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func New(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, now: time.Now}
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func liveKey(id string) string    { return "session:" + id }
func archiveKey(id string) string { return "session:" + id + ":final" }

// Get reads the live slot, then the archive slot, and otherwise returns a fresh session.
func (s *Store) Get(ctx context.Context, id string) (*intake.Session, error) {
	for _, key := range []string{liveKey(id), archiveKey(id)} {
		b, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		var sess intake.Session
		if err := json.Unmarshal(b, &sess); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		return &sess, nil
	}
	return intake.NewSession(id, s.now()), nil
}

func (s *Store) Put(ctx context.Context, sess *intake.Session, ttl time.Duration) error {
	return s.set(ctx, liveKey(sess.ID), sess, ttl)
}

func (s *Store) Archive(ctx context.Context, sess *intake.Session, ttl time.Duration) error {
	return s.set(ctx, archiveKey(sess.ID), sess, ttl)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, liveKey(id)).Err()
}

func (s *Store) set(ctx context.Context, key string, sess *intake.Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

var _ intake.Store = (*Store)(nil)
