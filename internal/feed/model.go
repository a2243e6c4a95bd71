package feed

import (
	"errors"
	"fmt"
	"strings"
)

// MaxContentLength bounds message content in characters.
const MaxContentLength = 200

const (
	seedSetLimit     = 4
	mainSetLimit     = 20
	unblurBase       = 4
	unblurPerMessage = 4
	unblurCap        = 20
)

var (
	// ErrEmptyContent indicates a message with no usable text.
	ErrEmptyContent = errors.New("feed: empty message content")
	// ErrContentTooLong indicates content exceeding MaxContentLength characters.
	ErrContentTooLong = errors.New("feed: message content too long")
	// ErrInvalidFeedMode indicates an unknown feed mode value.
	ErrInvalidFeedMode = errors.New("feed: invalid feed mode")
)

// Mode selects how the main set of the feed is composed.
type Mode string

const (
	// ModeAuto ranks the main set by recency.
	ModeAuto Mode = "auto"
	// ModeManual uses the admin-curated selection in display order.
	ModeManual Mode = "manual"
)

// ParseMode validates a raw feed mode value.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFeedMode, raw)
	}
}

// Message models one anonymous post. Content and authorship are immutable
// after creation; only the admin-set curation flags ever change.
type Message struct {
	ID                   string `gorm:"column:id;primaryKey;size:190;not null"`
	Content              string `gorm:"column:content;size:200;not null"`
	ImageURL             string `gorm:"column:image_url;size:512"`
	AuthorID             string `gorm:"column:author_id;size:190;not null;index"`
	CreatedAt            string `gorm:"column:created_at;size:64;not null;index"`
	IsInitiallyUnblurred bool   `gorm:"column:is_initially_unblurred;not null;default:false"`
	IsSelected           bool   `gorm:"column:is_selected;not null;default:false;index"`
	DisplayOrder         *int   `gorm:"column:display_order"`
	BaselineVotes        int64  `gorm:"column:baseline_votes;not null;default:0"`
	BaselineShares       int64  `gorm:"column:baseline_shares;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "messages"
}

// ValidateContent normalizes and checks message text.
func ValidateContent(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if len([]rune(trimmed)) > MaxContentLength {
		return "", fmt.Errorf("%w: %d characters", ErrContentTooLong, len([]rune(trimmed)))
	}
	return trimmed, nil
}
