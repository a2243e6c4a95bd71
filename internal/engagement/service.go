package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/identity"
	"github.com/cerberodev/sapo/internal/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identity.IDProvider
	Dispatcher *realtime.Dispatcher
	Logger     *zap.Logger
}

// Service is the engagement ledger: vote and share counters derived from
// event records. Tallies are recomputed from the rows on every read instead
// of being stored as mutable counters, so concurrent votes never lose updates.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identity.IDProvider
	dispatcher *realtime.Dispatcher
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("engagement: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("engagement: %w", errMissingIDProvider)
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
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}, nil
}

// CastVote applies toggle semantics for one voter on one message:
// no prior vote creates the record, the same direction removes it,
// the opposite direction replaces it.
func (s *Service) CastVote(ctx context.Context, voterID identity.VisitorID, messageID string, voteType VoteType) error {
	if voteType != VoteUpvote && voteType != VoteDownvote {
		return fmt.Errorf("%w: %q", ErrInvalidVoteType, voteType)
	}

	now := s.clock().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Vote
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("voter_id = ? AND message_id = ?", voterID.String(), messageID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&Vote{
				VoterID:   voterID.String(),
				MessageID: messageID,
				VoteType:  string(voteType),
				CreatedAt: now,
			}).Error
		case err != nil:
			return err
		case existing.VoteType == string(voteType):
			return tx.Delete(&existing).Error
		default:
			return tx.Model(&Vote{}).
				Where("voter_id = ? AND message_id = ?", voterID.String(), messageID).
				Updates(map[string]interface{}{"vote_type": string(voteType), "created_at": now}).Error
		}
	})
	if err != nil {
		s.logger.Error("failed to cast vote", zap.Error(err), zap.String("message_id", messageID))
		return fmt.Errorf("engagement: cast vote: %w", err)
	}

	if s.dispatcher != nil {
		s.dispatcher.Publish(realtime.Event{
			Topic:      realtime.TopicEngagement,
			MessageIDs: []string{messageID},
			Timestamp:  now,
		})
	}
	return nil
}

// VoteTally returns the message's baseline plus upvotes minus downvotes.
func (s *Service) VoteTally(ctx context.Context, messageID string) (int64, error) {
	baseline, _, err := s.baselines(ctx, messageID)
	if err != nil {
		return 0, err
	}

	var upvotes, downvotes int64
	err = s.db.WithContext(ctx).Model(&Vote{}).
		Where("message_id = ? AND vote_type = ?", messageID, string(VoteUpvote)).
		Count(&upvotes).Error
	if err != nil {
		return 0, fmt.Errorf("engagement: count upvotes: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&Vote{}).
		Where("message_id = ? AND vote_type = ?", messageID, string(VoteDownvote)).
		Count(&downvotes).Error
	if err != nil {
		return 0, fmt.Errorf("engagement: count downvotes: %w", err)
	}
	return baseline + upvotes - downvotes, nil
}

// UserVote reports the voter's active vote on the message, if any.
func (s *Service) UserVote(ctx context.Context, voterID identity.VisitorID, messageID string) (string, error) {
	var existing Vote
	err := s.db.WithContext(ctx).
		Where("voter_id = ? AND message_id = ?", voterID.String(), messageID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return string(VoteNone), nil
	}
	if err != nil {
		return "", fmt.Errorf("engagement: read user vote: %w", err)
	}
	return existing.VoteType, nil
}

// RecordShare appends a share event. messageID may be empty for a generic
// app-level share (for example the waitlist share dialog).
func (s *Service) RecordShare(ctx context.Context, voterID identity.VisitorID, messageID, platform string) error {
	shareID, err := s.idProvider.NewID()
	if err != nil {
		return fmt.Errorf("engagement: mint share id: %w", err)
	}
	now := s.clock().UTC()
	share := Share{
		ID:        shareID,
		VoterID:   voterID.String(),
		MessageID: messageID,
		Platform:  platform,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&share).Error; err != nil {
		s.logger.Error("failed to record share", zap.Error(err), zap.String("platform", platform))
		return fmt.Errorf("engagement: record share: %w", err)
	}

	if s.dispatcher != nil {
		event := realtime.Event{Topic: realtime.TopicEngagement, Timestamp: now}
		if messageID != "" {
			event.MessageIDs = []string{messageID}
		}
		s.dispatcher.Publish(event)
	}
	return nil
}

// ShareCount returns the message's baseline plus its share events.
func (s *Service) ShareCount(ctx context.Context, messageID string) (int64, error) {
	_, baseline, err := s.baselines(ctx, messageID)
	if err != nil {
		return 0, err
	}
	var total int64
	err = s.db.WithContext(ctx).Model(&Share{}).
		Where("message_id = ?", messageID).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("engagement: count shares: %w", err)
	}
	return baseline + total, nil
}

// TotalShares counts every share event, message-bound or generic.
func (s *Service) TotalShares(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Share{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("engagement: count all shares: %w", err)
	}
	return total, nil
}

func (s *Service) baselines(ctx context.Context, messageID string) (votes int64, shares int64, err error) {
	var message feed.Message
	err = s.db.WithContext(ctx).
		Select("baseline_votes", "baseline_shares").
		Where("id = ?", messageID).
		Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Votes and the voted-on message are only eventually consistent;
		// treat a missing message as zero baseline.
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("engagement: read baselines: %w", err)
	}
	return message.BaselineVotes, message.BaselineShares, nil
}
