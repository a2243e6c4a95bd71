package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// ErrInvalidVisitorID indicates that a visitor identifier is empty or exceeds storage bounds.
var ErrInvalidVisitorID = errors.New("identity: invalid visitor id")

// VisitorID represents a validated anonymous visitor identifier. It is a
// capability token minted by the client and passed explicitly into every
// core operation.
type VisitorID string

// NewVisitorID validates raw input and returns a VisitorID.
func NewVisitorID(rawInput string) (VisitorID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVisitorID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidVisitorID, maxIdentifierLength)
	}
	return VisitorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id VisitorID) String() string {
	return string(id)
}

// Visitor records when an anonymous identity was first and last seen. There is
// no registration and no server-side uniqueness guarantee beyond UUID space.
type Visitor struct {
	VisitorID   string    `gorm:"column:visitor_id;primaryKey;size:190;not null"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at;not null"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Visitor) TableName() string {
	return "visitors"
}
