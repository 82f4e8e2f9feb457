package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/storetest"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

func TestContract(t *testing.T) {
	uri := storetest.EnvOrSkip(t, "ROOMS_TEST_MONGO_URI")

	storetest.Run(t, func(t *testing.T) core.RoomStore {
		s, err := New(context.Background(), Config{
			URI:        uri,
			Database:   "rooms_test",
			Collection: "rooms_" + uuid.NewString()[:8],
			Namespace:  "test",
			Retries:    64,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func testRoom(t *testing.T) *domain.Room {
	t.Helper()
	room, err := core.NewRoom("ABCDE", domain.User{ID: "U1", Username: "Alice"}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return room
}

// found is the reply to the FindOne that loads room at version.
func found(mt *mtest.T, room *domain.Room, version int64) bson.D {
	mt.Helper()
	raw, err := bson.Marshal(document{ID: "test:" + string(room.Code), Version: version, Room: *room})
	require.NoError(mt, err)
	var doc bson.D
	require.NoError(mt, bson.Unmarshal(raw, &doc))
	ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, doc)
}

func matched(n int) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func TestUpdateRetriesOnVersionConflict(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save", func(mt *mtest.T) {
		room := testRoom(mt.T)
		locked := room.Clone()
		locked.IsLocked = true
		mt.AddMockResponses(
			found(mt, room, 1),
			matched(0), // another writer bumped the version first
			found(mt, locked, 2),
			matched(1),
		)

		s := wrap(mt.Coll, "test", 4)
		calls := 0
		saved, err := s.Update(context.Background(), room.Code, func(r *domain.Room) (core.Mutation, error) {
			calls++
			r.WhitelistedUsers = append(r.WhitelistedUsers, domain.UserRef{ID: "U2", Username: "Bob"})
			return core.Save, nil
		})
		require.NoError(mt, err)
		assert.Equal(mt, 2, calls)
		assert.True(mt, saved.IsLocked, "the retry works on the re-read document")
		assert.Len(mt, saved.WhitelistedUsers, 1)
	})

	mt.Run("delete", func(mt *mtest.T) {
		room := testRoom(mt.T)
		mt.AddMockResponses(
			found(mt, room, 3),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			found(mt, room, 4),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		s := wrap(mt.Coll, "test", 4)
		calls := 0
		saved, err := s.Update(context.Background(), room.Code, func(r *domain.Room) (core.Mutation, error) {
			calls++
			return core.Delete, nil
		})
		require.NoError(mt, err)
		assert.Nil(mt, saved)
		assert.Equal(mt, 2, calls)
	})

	mt.Run("gives up", func(mt *mtest.T) {
		room := testRoom(mt.T)
		mt.AddMockResponses(
			found(mt, room, 1), matched(0),
			found(mt, room, 2), matched(0),
		)

		s := wrap(mt.Coll, "test", 2)
		calls := 0
		_, err := s.Update(context.Background(), room.Code, func(r *domain.Room) (core.Mutation, error) {
			calls++
			r.IsLocked = true
			return core.Save, nil
		})
		assert.Equal(mt, domain.KindInternal, domain.KindOf(err))
		assert.Equal(mt, 2, calls)
	})

	mt.Run("keep skips the write", func(mt *mtest.T) {
		room := testRoom(mt.T)
		mt.AddMockResponses(found(mt, room, 1))

		s := wrap(mt.Coll, "test", 2)
		got, err := s.Update(context.Background(), room.Code, func(*domain.Room) (core.Mutation, error) {
			return core.Keep, domain.Errorf(domain.KindBadRequest, "nothing to do")
		})
		assert.Equal(mt, domain.KindBadRequest, domain.KindOf(err))
		require.NotNil(mt, got)
		assert.Equal(mt, room.OwnerID, got.OwnerID)
	})
}
