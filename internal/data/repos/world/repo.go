package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

var ErrNotFound = errors.New("world not found")

const DefaultListLimit = 50

type Repo interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit int) ([]Summary, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
}

type repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, baseLog *logger.Logger) Repo {
	return &repo{db: db, log: baseLog.With("repo", "WorldRepo")}
}

// Create assigns an id and creation time when unset.
func (r *repo) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Title == "" {
		rec.Title = "Untitled"
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repo) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []Summary
	err := r.db.WithContext(ctx).
		Model(&Record{}).
		Select("id", "title", "setting", "tone", "end_goal", "created_at").
		Order("created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Title == "" {
			rows[i].Title = "Untitled"
		}
	}
	if rows == nil {
		rows = []Summary{}
	}
	return rows, nil
}

func (r *repo) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	var rec Record
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

type nopRepo struct{}

// NopRepo stands in when no database is configured: writes are dropped, reads find nothing.
func NopRepo() Repo { return nopRepo{} }

func (nopRepo) Create(context.Context, *Record) error { return nil }

func (nopRepo) List(context.Context, int) ([]Summary, error) { return []Summary{}, nil }

func (nopRepo) GetByID(context.Context, uuid.UUID) (*Record, error) { return nil, ErrNotFound }
