package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies required for visitor identity tracking.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service records anonymous visitor identities. Clients normally mint their
// own token and persist it locally; the service only witnesses it. When a
// client arrives without a token (local storage unavailable), the service
// mints one so the visitor still gets a stable identity for the session.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("identity: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("identity: %w", errMissingIDProvider)
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
		logger:     logger,
	}, nil
}

// GetOrCreate returns a validated VisitorID for the supplied raw token,
// minting a fresh identifier when the token is empty, and records the
// first-seen/last-seen timestamps for dashboard counting.
func (s *Service) GetOrCreate(ctx context.Context, rawToken string) (VisitorID, error) {
	visitorID, err := NewVisitorID(rawToken)
	if errors.Is(err, ErrInvalidVisitorID) {
		minted, mintErr := s.idProvider.NewID()
		if mintErr != nil {
			return "", fmt.Errorf("identity: mint visitor id: %w", mintErr)
		}
		visitorID = VisitorID(minted)
	} else if err != nil {
		return "", err
	}

	now := s.clock().UTC()
	record := Visitor{VisitorID: visitorID.String(), FirstSeenAt: now, LastSeenAt: now}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visitor_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_seen_at": now}),
	}).Create(&record).Error
	if err != nil {
		s.logger.Error("failed to record visitor", zap.Error(err))
		return "", fmt.Errorf("identity: record visitor: %w", err)
	}
	return visitorID, nil
}

// Count returns the number of distinct visitor identities witnessed.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Visitor{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("identity: count visitors: %w", err)
	}
	return total, nil
}
