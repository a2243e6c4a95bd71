package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cerberodev/sapo/internal/identity"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	prefix string
	index  int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.index++
	return fmt.Sprintf("%s-%d", g.prefix, g.index), nil
}

type staticModeSource struct {
	mode Mode
}

func (s *staticModeSource) FeedMode(context.Context) (Mode, error) {
	return s.mode, nil
}

func mustVisitorID(t *testing.T, value string) identity.VisitorID {
	t.Helper()
	id, err := identity.NewVisitorID(value)
	if err != nil {
		t.Fatalf("unexpected visitor id error: %v", err)
	}
	return id
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:feed_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Message{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedMessage(t *testing.T, db *gorm.DB, message Message) {
	t.Helper()
	if err := db.Create(&message).Error; err != nil {
		t.Fatalf("failed to seed message %s: %v", message.ID, err)
	}
}

func intPtr(value int) *int {
	return &value
}
