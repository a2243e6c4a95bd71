package curation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cerberodev/sapo/internal/engagement"
	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/realtime"
	"github.com/cerberodev/sapo/internal/waitlist"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxSelected = 20
	maxSeeded   = 4
)

var (
	// ErrLimitExceeded indicates the manual selection already holds 20 messages.
	ErrLimitExceeded = errors.New("curation: selection limit exceeded")
	// ErrSeedLimitExceeded indicates the always-visible seed set already holds 4 messages.
	ErrSeedLimitExceeded = errors.New("curation: seed limit exceeded")
	// ErrMessageNotFound indicates the referenced message does not exist.
	ErrMessageNotFound = errors.New("curation: message not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Dispatcher *realtime.Dispatcher
	Logger     *zap.Logger
}

// Service implements the admin curation operations: the feed mode switch,
// manual selection and ordering, seed flags, dashboard statistics, day
// themes, and the irreversible purge. Every order-mutating operation runs in
// a locking transaction so two concurrent admins cannot break the dense
// 1-based display order or overshoot the selection limit.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	dispatcher *realtime.Dispatcher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("curation: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}, nil
}

// FeedMode reads the current global feed mode, defaulting to auto when the
// settings row has not been created yet. Satisfies feed.ModeSource.
func (s *Service) FeedMode(ctx context.Context) (feed.Mode, error) {
	setting, err := s.loadSetting(ctx, s.db)
	if err != nil {
		return "", err
	}
	mode, err := feed.ParseMode(setting.FeedMode)
	if err != nil {
		return feed.ModeAuto, nil
	}
	return mode, nil
}

// SetFeedMode swaps the global feed mode. Last write wins.
func (s *Service) SetFeedMode(ctx context.Context, mode feed.Mode) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.loadSetting(ctx, tx)
		if err != nil {
			return err
		}
		setting.FeedMode = string(mode)
		setting.UpdatedAt = s.clock().UTC()
		return tx.Save(&setting).Error
	})
	if err != nil {
		return fmt.Errorf("curation: set feed mode: %w", err)
	}
	s.publish(realtime.TopicSettings, nil)
	s.logger.Info("feed mode changed", zap.String("mode", string(mode)))
	return nil
}

// Select adds a message to the manual feed, assigning the next display order.
// Fails with ErrLimitExceeded when 20 messages are already selected; the
// count and the assignment happen inside one locking transaction.
func (s *Service) Select(ctx context.Context, messageID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err := s.lockMessage(tx, messageID)
		if err != nil {
			return err
		}
		if message.IsSelected {
			return nil
		}

		var selected int64
		err = tx.Model(&feed.Message{}).
			Where("is_selected = ?", true).
			Count(&selected).Error
		if err != nil {
			return err
		}
		if selected >= maxSelected {
			return ErrLimitExceeded
		}

		var maxOrder int
		err = tx.Model(&feed.Message{}).
			Where("is_selected = ?", true).
			Select("COALESCE(MAX(display_order), 0)").
			Scan(&maxOrder).Error
		if err != nil {
			return err
		}

		next := maxOrder + 1
		return tx.Model(&feed.Message{}).
			Where("id = ?", messageID).
			Updates(map[string]interface{}{"is_selected": true, "display_order": next}).Error
	})
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) || errors.Is(err, ErrMessageNotFound) {
			return err
		}
		return fmt.Errorf("curation: select message: %w", err)
	}
	s.publish(realtime.TopicCuration, []string{messageID})
	return nil
}

// Unselect removes a message from the manual feed and compacts the display
// order of everything behind it, keeping the range contiguous from 1.
func (s *Service) Unselect(ctx context.Context, messageID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err := s.lockMessage(tx, messageID)
		if err != nil {
			return err
		}
		if !message.IsSelected || message.DisplayOrder == nil {
			return nil
		}
		removedOrder := *message.DisplayOrder

		err = tx.Model(&feed.Message{}).
			Where("id = ?", messageID).
			Updates(map[string]interface{}{"is_selected": false, "display_order": nil}).Error
		if err != nil {
			return err
		}

		return tx.Model(&feed.Message{}).
			Where("is_selected = ? AND display_order > ?", true, removedOrder).
			Update("display_order", gorm.Expr("display_order - 1")).Error
	})
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return err
		}
		return fmt.Errorf("curation: unselect message: %w", err)
	}
	s.publish(realtime.TopicCuration, []string{messageID})
	return nil
}

// SwapOrder exchanges two selected messages' display orders. A no-op when
// either message is not currently selected.
func (s *Service) SwapOrder(ctx context.Context, firstID, secondID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, err := s.lockMessage(tx, firstID)
		if err != nil {
			return err
		}
		second, err := s.lockMessage(tx, secondID)
		if err != nil {
			return err
		}
		if !first.IsSelected || !second.IsSelected || first.DisplayOrder == nil || second.DisplayOrder == nil {
			return nil
		}

		err = tx.Model(&feed.Message{}).
			Where("id = ?", firstID).
			Update("display_order", *second.DisplayOrder).Error
		if err != nil {
			return err
		}
		return tx.Model(&feed.Message{}).
			Where("id = ?", secondID).
			Update("display_order", *first.DisplayOrder).Error
	})
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return err
		}
		return fmt.Errorf("curation: swap order: %w", err)
	}
	s.publish(realtime.TopicCuration, []string{firstID, secondID})
	return nil
}

// MarkSeed toggles a message's membership in the always-visible seed set,
// which is bounded to 4 messages.
func (s *Service) MarkSeed(ctx context.Context, messageID string, seeded bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err := s.lockMessage(tx, messageID)
		if err != nil {
			return err
		}
		if message.IsInitiallyUnblurred == seeded {
			return nil
		}
		if seeded {
			var count int64
			err = tx.Model(&feed.Message{}).
				Where("is_initially_unblurred = ?", true).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count >= maxSeeded {
				return ErrSeedLimitExceeded
			}
		}
		return tx.Model(&feed.Message{}).
			Where("id = ?", messageID).
			Update("is_initially_unblurred", seeded).Error
	})
	if err != nil {
		if errors.Is(err, ErrSeedLimitExceeded) || errors.Is(err, ErrMessageNotFound) {
			return err
		}
		return fmt.Errorf("curation: mark seed: %w", err)
	}
	s.publish(realtime.TopicCuration, []string{messageID})
	return nil
}

// ListMessages returns every message ordered by creation time.
func (s *Service) ListMessages(ctx context.Context, newestFirst bool) ([]feed.Message, error) {
	order := "created_at ASC"
	if newestFirst {
		order = "created_at DESC"
	}
	var messages []feed.Message
	if err := s.db.WithContext(ctx).Order(order).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("curation: list messages: %w", err)
	}
	return messages, nil
}

// DashboardStats computes the admin dashboard counters from the raw rows.
func (s *Service) DashboardStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.WithContext(ctx).Model(&feed.Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return Stats{}, fmt.Errorf("curation: count messages: %w", err)
	}
	err := s.db.WithContext(ctx).Model(&feed.Message{}).
		Distinct("author_id").
		Count(&stats.TotalVisitors).Error
	if err != nil {
		return Stats{}, fmt.Errorf("curation: count authors: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&engagement.Share{}).Count(&stats.TotalShares).Error; err != nil {
		return Stats{}, fmt.Errorf("curation: count shares: %w", err)
	}
	if stats.TotalVisitors > 0 {
		stats.AvgMessagesPerUser = float64(stats.TotalMessages) / float64(stats.TotalVisitors)
	}
	return stats, nil
}

// DisplayedMessageCount is the live message count biased by the configured
// starting offset.
func (s *Service) DisplayedMessageCount(ctx context.Context) (int64, error) {
	setting, err := s.loadSetting(ctx, s.db)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&feed.Message{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("curation: count messages: %w", err)
	}
	return total + setting.CountOffset, nil
}

// SetCountOffset replaces the starting offset.
func (s *Service) SetCountOffset(ctx context.Context, offset int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.loadSetting(ctx, tx)
		if err != nil {
			return err
		}
		setting.CountOffset = offset
		setting.UpdatedAt = s.clock().UTC()
		return tx.Save(&setting).Error
	})
	if err != nil {
		return fmt.Errorf("curation: set count offset: %w", err)
	}
	s.publish(realtime.TopicSettings, nil)
	return nil
}

// PurgeAll deletes every message, vote, share, and waitlist entry.
// Irreversible; there is no soft delete.
func (s *Service) PurgeAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&feed.Message{},
			&engagement.Vote{},
			&engagement.Share{},
			&waitlist.Entry{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("curation: purge: %w", err)
	}
	s.publish(realtime.TopicMessages, nil)
	s.logger.Warn("all content purged")
	return nil
}

func (s *Service) lockMessage(tx *gorm.DB, messageID string) (feed.Message, error) {
	var message feed.Message
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", messageID).
		Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return feed.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if err != nil {
		return feed.Message{}, err
	}
	return message, nil
}

func (s *Service) loadSetting(ctx context.Context, tx *gorm.DB) (Setting, error) {
	setting := Setting{ID: settingRowID, FeedMode: string(feed.ModeAuto)}
	err := tx.WithContext(ctx).
		Where(Setting{ID: settingRowID}).
		Attrs(Setting{FeedMode: string(feed.ModeAuto), UpdatedAt: s.clock().UTC()}).
		FirstOrCreate(&setting).Error
	if err != nil {
		return Setting{}, fmt.Errorf("curation: load settings: %w", err)
	}
	return setting, nil
}

func (s *Service) publish(topic string, messageIDs []string) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(realtime.Event{
		Topic:      topic,
		MessageIDs: messageIDs,
		Timestamp:  s.clock().UTC(),
	})
}
