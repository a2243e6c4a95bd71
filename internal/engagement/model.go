package engagement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VoteType is the direction of a visitor's vote.
type VoteType string

const (
	VoteUpvote   VoteType = "upvote"
	VoteDownvote VoteType = "downvote"
	// VoteNone is returned when a visitor holds no active vote.
	VoteNone VoteType = "none"
)

// ErrInvalidVoteType indicates an unknown vote direction.
var ErrInvalidVoteType = errors.New("engagement: invalid vote type")

// ParseVoteType validates a raw vote direction.
func ParseVoteType(raw string) (VoteType, error) {
	switch VoteType(strings.ToLower(strings.TrimSpace(raw))) {
	case VoteUpvote:
		return VoteUpvote, nil
	case VoteDownvote:
		return VoteDownvote, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVoteType, raw)
	}
}

// Vote holds at most one row per (voter, message). Casting the same direction
// again deletes the row; casting the opposite direction replaces it.
type Vote struct {
	VoterID   string    `gorm:"column:voter_id;primaryKey;size:190;not null"`
	MessageID string    `gorm:"column:message_id;primaryKey;size:190;not null;index"`
	VoteType  string    `gorm:"column:vote_type;size:16;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Share is an append-only event record. MessageID is empty for generic
// app-level shares; rows are only ever removed by the admin purge.
type Share struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	VoterID   string    `gorm:"column:voter_id;size:190"`
	MessageID string    `gorm:"column:message_id;size:190;index"`
	Platform  string    `gorm:"column:platform;size:64"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Share) TableName() string {
	return "shares"
}
