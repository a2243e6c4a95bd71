package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cerberodev/sapo/internal/identity"
	"github.com/cerberodev/sapo/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingLimiter    = errors.New("submission limiter is required")
	noOpLogger           = zap.NewNop()
)

// ThrottledError reports a submission rejected by the rate limiter.
type ThrottledError struct {
	RetryAfterSeconds int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("feed: throttled, retry after %d seconds", e.RetryAfterSeconds)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identity.IDProvider
	Limiter    *identity.SubmissionLimiter
	Dispatcher *realtime.Dispatcher
	Logger     *zap.Logger
}

// Service accepts new anonymous messages: validation, rate limiting,
// persistence, and change notification.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identity.IDProvider
	limiter    *identity.SubmissionLimiter
	dispatcher *realtime.Dispatcher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("feed: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("feed: %w", errMissingIDProvider)
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("feed: %w", errMissingLimiter)
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
		idProvider: cfg.IDProvider,
		limiter:    cfg.Limiter,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}, nil
}

// Post stores a new message authored by visitorID. Content is validated and
// the visitor's submission window is checked before anything is written.
func (s *Service) Post(ctx context.Context, visitorID identity.VisitorID, content, imageURL string) (Message, error) {
	normalized, err := ValidateContent(content)
	if err != nil {
		return Message{}, err
	}

	now := s.clock().UTC()
	decision := s.limiter.CheckAndRecord(visitorID, now)
	if !decision.Allowed {
		return Message{}, &ThrottledError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	messageID, err := s.idProvider.NewID()
	if err != nil {
		return Message{}, fmt.Errorf("feed: mint message id: %w", err)
	}

	message := Message{
		ID:        messageID,
		Content:   normalized,
		ImageURL:  imageURL,
		AuthorID:  visitorID.String(),
		CreatedAt: now.Format(time.RFC3339Nano),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logger.Error("failed to store message", zap.Error(err), zap.String("author_id", visitorID.String()))
		return Message{}, fmt.Errorf("feed: store message: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(realtime.Event{
			Topic:      realtime.TopicMessages,
			MessageIDs: []string{message.ID},
			Timestamp:  now,
		})
	}
	s.logger.Info("message posted", zap.String("message_id", message.ID))
	return message, nil
}

// SentCount returns how many messages the visitor has authored, which drives
// the progressive unblur threshold.
func (s *Service) SentCount(ctx context.Context, visitorID identity.VisitorID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("author_id = ?", visitorID.String()).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("feed: count sent messages: %w", err)
	}
	return total, nil
}

// TotalCount returns the number of stored messages.
func (s *Service) TotalCount(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Message{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("feed: count messages: %w", err)
	}
	return total, nil
}
