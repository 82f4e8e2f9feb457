// Package pgstore keeps room documents in a Postgres jsonb column. Updates run in a
// transaction that locks the row with SELECT ... FOR UPDATE.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type roomRecord struct {
	ID        string `gorm:"primaryKey;size:96"`
	Doc       string `gorm:"type:jsonb;not null"`
	Version   int64  `gorm:"not null"`
	UpdatedAt time.Time
}

func (roomRecord) TableName() string { return "rooms" }

type Store struct {
	db *gorm.DB
	ns string
}

var _ core.RoomStore = (*Store)(nil)

// Open connects and migrates the rooms table.
func Open(dsn, namespace string) (*Store, error) {
	db, err := connect(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&roomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}
	return &Store{db: db, ns: namespace}, nil
}

func connect(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (s *Store) id(code domain.RoomCode) string {
	return s.ns + ":" + string(code)
}

func (s *Store) Create(ctx context.Context, room *domain.Room) error {
	doc, err := json.Marshal(room)
	if err != nil {
		return domain.Internal("encode room", err)
	}
	err = s.db.WithContext(ctx).Create(&roomRecord{ID: s.id(room.Code), Doc: string(doc), Version: 1}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Errorf(domain.KindConflict, "Room %s already exists.", room.Code)
	}
	if err != nil {
		return domain.Internal("create room", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	var rec roomRecord
	if err := s.db.WithContext(ctx).Take(&rec, "id = ?", s.id(code)).Error; err != nil {
		return nil, translate(err, code)
	}
	return decode(rec.Doc)
}

func (s *Store) Update(ctx context.Context, code domain.RoomCode, fn core.UpdateFunc) (*domain.Room, error) {
	var (
		result *domain.Room
		fnErr  error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec roomRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&rec, "id = ?", s.id(code)).Error
		if err != nil {
			return translate(err, code)
		}
		cur, err := decode(rec.Doc)
		if err != nil {
			return err
		}
		next := cur.Clone()
		mut, ferr := fn(next)
		fnErr = ferr

		switch mut {
		case core.Save:
			doc, err := json.Marshal(next)
			if err != nil {
				return domain.Internal("encode room", err)
			}
			err = tx.Model(&rec).Updates(map[string]any{"doc": string(doc), "version": rec.Version + 1}).Error
			if err != nil {
				return domain.Internal("update room", err)
			}
			result = next
		case core.Delete:
			if err := tx.Delete(&rec).Error; err != nil {
				return domain.Internal("delete room", err)
			}
			result = nil
		default:
			result = cur
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, fnErr
}

func translate(err error, code domain.RoomCode) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Errorf(domain.KindNotFound, "Room %s not found.", code)
	}
	return domain.Internal("get room", err)
}

func decode(doc string) (*domain.Room, error) {
	var room domain.Room
	if err := json.Unmarshal([]byte(doc), &room); err != nil {
		return nil, domain.Internal("decode room", err)
	}
	return &room, nil
}

// DeleteNamespace removes every room of this store's namespace. Tests use it to clean up.
func (s *Store) DeleteNamespace(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("id LIKE ?", s.ns+":%").Delete(&roomRecord{}).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
