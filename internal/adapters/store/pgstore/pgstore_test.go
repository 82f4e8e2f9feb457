package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"github.com/0Azuree/Ledeqth-sub000/internal/adapters/store/storetest"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

func TestContract(t *testing.T) {
	dsn := storetest.EnvOrSkip(t, "ROOMS_TEST_POSTGRES_DSN")

	storetest.Run(t, func(t *testing.T) core.RoomStore {
		s, err := Open(dsn, "test-"+uuid.NewString()[:8])
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.DeleteNamespace(context.Background())
			_ = s.Close()
		})
		return s
	})
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := connect(postgres.New(postgres.Config{Conn: conn}))
	require.NoError(t, err)
	s := &Store{db: db, ns: "test"}
	t.Cleanup(func() { _ = s.Close() })
	return s, mock
}

func testRoom(t *testing.T) (*domain.Room, string) {
	t.Helper()
	room, err := core.NewRoom("ABCDE", domain.User{ID: "U1", Username: "Alice"}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	doc, err := json.Marshal(room)
	require.NoError(t, err)
	return room, string(doc)
}

const lockRow = `SELECT \* FROM "rooms" WHERE id = \$1 .*FOR UPDATE`

func rows(doc string, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "doc", "version", "updated_at"}).
		AddRow("test:ABCDE", doc, version, time.Now())
}

func TestUpdateLocksRowInTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	room, doc := testRoom(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRow).WillReturnRows(rows(doc, 7))
	mock.ExpectExec(`UPDATE "rooms" SET .*"version"=`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, err := s.Update(context.Background(), room.Code, func(r *domain.Room) (core.Mutation, error) {
		r.IsLocked = true
		return core.Save, nil
	})
	require.NoError(t, err)
	assert.True(t, saved.IsLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateErrorStillCommits(t *testing.T) {
	s, mock := newMockStore(t)
	room, doc := testRoom(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRow).WillReturnRows(rows(doc, 1))
	mock.ExpectExec(`DELETE FROM "rooms"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	refused := domain.Errorf(domain.KindForbidden, "closed")
	saved, err := s.Update(context.Background(), room.Code, func(*domain.Room) (core.Mutation, error) {
		return core.Delete, refused
	})
	assert.ErrorIs(t, err, refused)
	assert.Nil(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRow).WillReturnRows(sqlmock.NewRows([]string{"id", "doc", "version", "updated_at"}))
	mock.ExpectRollback()

	called := false
	_, err := s.Update(context.Background(), "ABCDE", func(*domain.Room) (core.Mutation, error) {
		called = true
		return core.Save, nil
	})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWriteFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	room, doc := testRoom(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRow).WillReturnRows(rows(doc, 1))
	mock.ExpectExec(`UPDATE "rooms"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), room.Code, func(r *domain.Room) (core.Mutation, error) {
		r.IsLocked = true
		return core.Save, nil
	})
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
