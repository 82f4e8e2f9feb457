// Package redisstore keeps one JSON document per room under <namespace>:room:<code>
// and serializes updates with WATCH/MULTI.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

const defaultRetries = 16

type Config struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	Namespace string
	Retries   int
}

type Store struct {
	client  *redis.Client
	ns      string
	retries int
}

var _ core.RoomStore = (*Store)(nil)

// NewClient dials redis and checks the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// New wraps an existing client. The store owns it from then on.
func New(client *redis.Client, namespace string, retries int) *Store {
	if retries <= 0 {
		retries = defaultRetries
	}
	return &Store{client: client, ns: namespace, retries: retries}
}

func (s *Store) key(code domain.RoomCode) string {
	return s.ns + ":room:" + string(code)
}

func (s *Store) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return domain.Internal("encode room", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(room.Code), data, 0).Result()
	if err != nil {
		return domain.Internal("create room", err)
	}
	if !ok {
		return domain.Errorf(domain.KindConflict, "Room %s already exists.", room.Code)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.Errorf(domain.KindNotFound, "Room %s not found.", code)
	}
	if err != nil {
		return nil, domain.Internal("get room", err)
	}
	return decode(data)
}

func decode(data []byte) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, domain.Internal("decode room", err)
	}
	return &room, nil
}

// Update retries fn whenever another writer touched the key between WATCH and EXEC.
func (s *Store) Update(ctx context.Context, code domain.RoomCode, fn core.UpdateFunc) (*domain.Room, error) {
	key := s.key(code)
	for attempt := 0; attempt < s.retries; attempt++ {
		var (
			result *domain.Room
			fnErr  error
		)
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.Errorf(domain.KindNotFound, "Room %s not found.", code)
			}
			if err != nil {
				return domain.Internal("get room", err)
			}
			cur, err := decode(data)
			if err != nil {
				return err
			}
			next := cur.Clone()
			mut, ferr := fn(next)
			fnErr = ferr

			switch mut {
			case core.Save:
				out, err := json.Marshal(next)
				if err != nil {
					return domain.Internal("encode room", err)
				}
				_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
					p.Set(ctx, key, out, 0)
					return nil
				})
				result = next
				return err
			case core.Delete:
				_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
					p.Del(ctx, key)
					return nil
				})
				result = nil
				return err
			}
			result = cur
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("module", "store.redis").Str("room", string(code)).Int("attempt", attempt).Msg("watch conflict, retrying")
			continue
		}
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return nil, err
			}
			return nil, domain.Internal("update room", err)
		}
		return result, fnErr
	}
	return nil, domain.Internal("update room", fmt.Errorf("gave up after %d conflicting attempts", s.retries))
}

func (s *Store) Close() error {
	return s.client.Close()
}
