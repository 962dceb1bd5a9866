package world

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestWorldRepo(t *testing.T) {
	db := testDB(t)
	repo := NewRepo(db, logger.Nop())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	older := &Record{
		Story: "an old story", EndGoal: "end it", Title: "Old", Setting: "s", Tone: "t",
		Bible:     datatypes.JSON(`{"world":{"title":"Old"}}`),
		CreatedAt: base,
	}
	newer := &Record{
		Story: "a new story", EndGoal: "end it again",
		Bible:     datatypes.JSON(`{"world":{}}`),
		CreatedAt: base.Add(time.Hour),
	}
	for _, rec := range []*Record{older, newer} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if rec.ID == uuid.Nil {
			t.Fatalf("Create did not assign an id")
		}
	}

	list, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List: expected 2 rows, got %d", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("List: expected newest first, got %+v", list)
	}
	if list[0].Title != "Untitled" {
		t.Fatalf("List: expected Untitled for missing title, got %q", list[0].Title)
	}
	if list[1].EndGoal != "end it" {
		t.Fatalf("List: end_goal = %q", list[1].EndGoal)
	}

	got, err := repo.GetByID(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Story != "an old story" || !strings.Contains(string(got.Bible), `"Old"`) {
		t.Fatalf("GetByID: unexpected record %+v", got)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID(unknown): expected ErrNotFound, got %v", err)
	}
}

func TestNopRepo(t *testing.T) {
	r := NopRepo()
	ctx := context.Background()
	if err := r.Create(ctx, &Record{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	list, err := r.List(ctx, 10)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("List = %v, %v", list, err)
	}
	if _, err := r.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID: expected ErrNotFound, got %v", err)
	}
}
