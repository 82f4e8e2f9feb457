// Package mongostore stores rooms as MongoDB documents guarded by a version
// counter. Updates are compare-and-swap on (_id, version) with retry.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

const defaultRetries = 16

type Config struct {
	URI        string
	Database   string
	Collection string
	Namespace  string
	Retries    int
}

type document struct {
	ID      string      `bson:"_id"`
	Version int64       `bson:"version"`
	Room    domain.Room `bson:"room"`
}

type Store struct {
	client  *mongo.Client
	coll    *mongo.Collection
	ns      string
	retries int
}

var _ core.RoomStore = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if cfg.Collection == "" {
		cfg.Collection = "rooms"
	}
	s := wrap(client.Database(cfg.Database).Collection(cfg.Collection), cfg.Namespace, cfg.Retries)
	s.client = client
	return s, nil
}

// wrap builds a store over coll. Close is a no-op until client is set.
func wrap(coll *mongo.Collection, namespace string, retries int) *Store {
	if retries <= 0 {
		retries = defaultRetries
	}
	return &Store{coll: coll, ns: namespace, retries: retries}
}

func (s *Store) id(code domain.RoomCode) string {
	return s.ns + ":" + string(code)
}

func (s *Store) Create(ctx context.Context, room *domain.Room) error {
	_, err := s.coll.InsertOne(ctx, document{ID: s.id(room.Code), Version: 1, Room: *room})
	if mongo.IsDuplicateKeyError(err) {
		return domain.Errorf(domain.KindConflict, "Room %s already exists.", room.Code)
	}
	if err != nil {
		return domain.Internal("create room", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, code domain.RoomCode) (*document, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": s.id(code)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.Errorf(domain.KindNotFound, "Room %s not found.", code)
	}
	if err != nil {
		return nil, domain.Internal("get room", err)
	}
	return &doc, nil
}

func (s *Store) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	doc, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return &doc.Room, nil
}

func (s *Store) Update(ctx context.Context, code domain.RoomCode, fn core.UpdateFunc) (*domain.Room, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		doc, err := s.load(ctx, code)
		if err != nil {
			return nil, err
		}
		next := doc.Room.Clone()
		mut, fnErr := fn(next)

		guard := bson.M{"_id": doc.ID, "version": doc.Version}
		switch mut {
		case core.Save:
			res, err := s.coll.ReplaceOne(ctx, guard, document{ID: doc.ID, Version: doc.Version + 1, Room: *next})
			if err != nil {
				return nil, domain.Internal("update room", err)
			}
			if res.MatchedCount == 1 {
				return next, fnErr
			}
		case core.Delete:
			res, err := s.coll.DeleteOne(ctx, guard)
			if err != nil {
				return nil, domain.Internal("delete room", err)
			}
			if res.DeletedCount == 1 {
				return nil, fnErr
			}
		default:
			return &doc.Room, fnErr
		}
		log.Debug().Str("module", "store.mongo").Str("room", string(code)).Int("attempt", attempt).Msg("version conflict, retrying")
	}
	return nil, domain.Internal("update room", fmt.Errorf("gave up after %d conflicting attempts", s.retries))
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the collection. Tests use it to clean up.
func (s *Store) Drop(ctx context.Context) error {
	return s.coll.Drop(ctx)
}
