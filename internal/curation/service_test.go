package curation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/cerberodev/sapo/internal/engagement"
	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/waitlist"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:curation_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	err = db.AutoMigrate(&feed.Message{}, &engagement.Vote{}, &engagement.Share{}, &waitlist.Entry{}, &Setting{}, &DayTheme{})
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service, db
}

func seedMessages(t *testing.T, db *gorm.DB, count int) []string {
	t.Helper()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("msg-%d", i)
		message := feed.Message{
			ID:        id,
			Content:   fmt.Sprintf("content %d", i),
			AuthorID:  fmt.Sprintf("author-%d", i%3),
			CreatedAt: time.Unix(1700000000+int64(i), 0).UTC().Format(time.RFC3339Nano),
		}
		if err := db.Create(&message).Error; err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func selectedOrders(t *testing.T, db *gorm.DB) map[string]int {
	t.Helper()
	var messages []feed.Message
	if err := db.Where("is_selected = ?", true).Find(&messages).Error; err != nil {
		t.Fatalf("failed to load selected messages: %v", err)
	}
	orders := make(map[string]int, len(messages))
	for _, message := range messages {
		if message.DisplayOrder == nil {
			t.Fatalf("selected message %s has no display order", message.ID)
		}
		orders[message.ID] = *message.DisplayOrder
	}
	return orders
}

func assertContiguousFromOne(t *testing.T, orders map[string]int) {
	t.Helper()
	values := make([]int, 0, len(orders))
	for _, order := range orders {
		values = append(values, order)
	}
	sort.Ints(values)
	for i, value := range values {
		if value != i+1 {
			t.Fatalf("display orders not contiguous from 1: %v", values)
		}
	}
}

func TestFeedModeDefaultsToAuto(t *testing.T) {
	service, _ := newTestService(t)

	mode, err := service.FeedMode(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != feed.ModeAuto {
		t.Fatalf("expected default auto mode, got %s", mode)
	}
}

func TestSetFeedModeSwapsTheGlobalSetting(t *testing.T) {
	service, _ := newTestService(t)

	if err := service.SetFeedMode(context.Background(), feed.ModeManual); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mode, err := service.FeedMode(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != feed.ModeManual {
		t.Fatalf("expected manual mode, got %s", mode)
	}
}

func TestSelectAssignsDenseDisplayOrder(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 3)

	for _, id := range ids {
		if err := service.Select(context.Background(), id); err != nil {
			t.Fatalf("unexpected error selecting %s: %v", id, err)
		}
	}

	orders := selectedOrders(t, db)
	for i, id := range ids {
		if orders[id] != i+1 {
			t.Fatalf("expected %s at order %d, got %d", id, i+1, orders[id])
		}
	}
}

func TestSelectAtLimitFailsWithoutMutation(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 21)

	for _, id := range ids[:20] {
		if err := service.Select(context.Background(), id); err != nil {
			t.Fatalf("unexpected error selecting %s: %v", id, err)
		}
	}

	err := service.Select(context.Background(), ids[20])
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	orders := selectedOrders(t, db)
	if len(orders) != 20 {
		t.Fatalf("expected selection to stay at 20, got %d", len(orders))
	}
	assertContiguousFromOne(t, orders)
}

func TestSelectIsIdempotentForSelectedMessage(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 2)

	if err := service.Select(context.Background(), ids[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Select(context.Background(), ids[0]); err != nil {
		t.Fatalf("expected re-select to be a no-op, got %v", err)
	}
	orders := selectedOrders(t, db)
	if len(orders) != 1 || orders[ids[0]] != 1 {
		t.Fatalf("unexpected orders after duplicate select: %v", orders)
	}
}

func TestUnselectCompactsFollowingOrders(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 5)

	for _, id := range ids {
		if err := service.Select(context.Background(), id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Remove the message at display order 2.
	if err := service.Unselect(context.Background(), ids[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orders := selectedOrders(t, db)
	if len(orders) != 4 {
		t.Fatalf("expected 4 selected messages, got %d", len(orders))
	}
	if _, still := orders[ids[1]]; still {
		t.Fatalf("unselected message still selected")
	}
	assertContiguousFromOne(t, orders)
	// Everything behind the removed slot moved up by exactly one.
	for i, id := range []string{ids[2], ids[3], ids[4]} {
		if orders[id] != i+2 {
			t.Fatalf("expected %s at order %d, got %d", id, i+2, orders[id])
		}
	}
}

func TestSwapOrderExchangesPositions(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 3)

	for _, id := range ids {
		if err := service.Select(context.Background(), id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if err := service.SwapOrder(context.Background(), ids[0], ids[2]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orders := selectedOrders(t, db)
	if orders[ids[0]] != 3 || orders[ids[2]] != 1 {
		t.Fatalf("expected orders swapped, got %v", orders)
	}
	if orders[ids[1]] != 2 {
		t.Fatalf("middle message should be untouched, got %d", orders[ids[1]])
	}
}

func TestSwapOrderIsNoOpForUnselectedMessage(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 2)

	if err := service.Select(context.Background(), ids[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.SwapOrder(context.Background(), ids[0], ids[1]); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	orders := selectedOrders(t, db)
	if orders[ids[0]] != 1 {
		t.Fatalf("expected order unchanged, got %v", orders)
	}
}

func TestMarkSeedBoundedToFour(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 5)

	for _, id := range ids[:4] {
		if err := service.MarkSeed(context.Background(), id, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	err := service.MarkSeed(context.Background(), ids[4], true)
	if !errors.Is(err, ErrSeedLimitExceeded) {
		t.Fatalf("expected ErrSeedLimitExceeded, got %v", err)
	}

	// Unseeding frees a slot.
	if err := service.MarkSeed(context.Background(), ids[0], false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.MarkSeed(context.Background(), ids[4], true); err != nil {
		t.Fatalf("expected seed to succeed after unseed, got %v", err)
	}
}

func TestCurationRejectsUnknownMessage(t *testing.T) {
	service, _ := newTestService(t)

	if err := service.Select(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if err := service.Unselect(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestDashboardStats(t *testing.T) {
	service, db := newTestService(t)
	seedMessages(t, db, 6) // three distinct authors

	share := engagement.Share{ID: "share-1", Platform: "WhatsApp", CreatedAt: time.Now().UTC()}
	if err := db.Create(&share).Error; err != nil {
		t.Fatalf("failed to seed share: %v", err)
	}

	stats, err := service.DashboardStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalMessages != 6 {
		t.Fatalf("expected 6 messages, got %d", stats.TotalMessages)
	}
	if stats.TotalVisitors != 3 {
		t.Fatalf("expected 3 distinct authors, got %d", stats.TotalVisitors)
	}
	if stats.AvgMessagesPerUser != 2 {
		t.Fatalf("expected average 2, got %f", stats.AvgMessagesPerUser)
	}
	if stats.TotalShares != 1 {
		t.Fatalf("expected 1 share, got %d", stats.TotalShares)
	}
}

func TestDisplayedMessageCountAppliesOffset(t *testing.T) {
	service, db := newTestService(t)
	seedMessages(t, db, 3)

	if err := service.SetCountOffset(context.Background(), 503); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total, err := service.DisplayedMessageCount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 506 {
		t.Fatalf("expected 3 + 503 = 506, got %d", total)
	}
}

func TestPurgeAllDeletesEverything(t *testing.T) {
	service, db := newTestService(t)
	seedMessages(t, db, 3)
	if err := db.Create(&engagement.Vote{VoterID: "v", MessageID: "msg-0", VoteType: "upvote", CreatedAt: time.Now().UTC()}).Error; err != nil {
		t.Fatalf("failed to seed vote: %v", err)
	}
	if err := db.Create(&engagement.Share{ID: "share-1", Platform: "WhatsApp", CreatedAt: time.Now().UTC()}).Error; err != nil {
		t.Fatalf("failed to seed share: %v", err)
	}
	entry := waitlist.Entry{ID: "entry-1", PhoneNumber: "+525512345678", CountryCode: "+52", RawPhone: "5512345678", CreatedAt: time.Now().UTC()}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed waitlist entry: %v", err)
	}

	if err := service.PurgeAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, model := range map[string]interface{}{
		"messages": &feed.Message{},
		"votes":    &engagement.Vote{},
		"shares":   &engagement.Share{},
		"waitlist": &waitlist.Entry{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("failed to count %s: %v", name, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be purged, found %d rows", name, count)
		}
	}
}

func TestListMessagesOrdering(t *testing.T) {
	service, db := newTestService(t)
	ids := seedMessages(t, db, 3)

	newest, err := service.ListMessages(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newest[0].ID != ids[2] {
		t.Fatalf("expected newest first, got %s", newest[0].ID)
	}

	oldest, err := service.ListMessages(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldest[0].ID != ids[0] {
		t.Fatalf("expected oldest first, got %s", oldest[0].ID)
	}
}
