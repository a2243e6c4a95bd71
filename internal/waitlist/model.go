package waitlist

import (
	"errors"
	"time"
)

var (
	// ErrInvalidPhone indicates a phone number outside 8-15 digits.
	ErrInvalidPhone = errors.New("waitlist: invalid phone number")
	// ErrDuplicatePhone indicates the phone number is already on the list.
	ErrDuplicatePhone = errors.New("waitlist: phone number already registered")
)

// Entry is one waitlist registration. PhoneNumber carries the country code
// prefix and is unique across the collection; the database index enforces it
// so two concurrent submissions of the same number cannot both land.
type Entry struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	PhoneNumber string    `gorm:"column:phone_number;size:32;not null;uniqueIndex"`
	CountryCode string    `gorm:"column:country_code;size:8;not null"`
	CountryName string    `gorm:"column:country_name;size:64"`
	RawPhone    string    `gorm:"column:raw_phone;size:24;not null"`
	VisitorID   string    `gorm:"column:visitor_id;size:190"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "waitlist_entries"
}
