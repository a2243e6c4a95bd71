package waitlist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/cerberodev/sapo/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	digitsOnly = regexp.MustCompile(`\D`)
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identity.IDProvider
	Logger     *zap.Logger
}

// Service manages the phone-number waitlist.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identity.IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("waitlist: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("waitlist: %w", errMissingIDProvider)
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

// Join validates and registers a phone number. The duplicate check and the
// insert run inside one transaction against the unique index, so the
// duplicate answer is authoritative rather than a pre-check race.
func (s *Service) Join(ctx context.Context, visitorID identity.VisitorID, countryCode, countryName, rawPhone string) (Entry, error) {
	digits := digitsOnly.ReplaceAllString(strings.TrimSpace(rawPhone), "")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return Entry{}, fmt.Errorf("%w: %d digits", ErrInvalidPhone, len(digits))
	}
	code := strings.TrimSpace(countryCode)
	if code == "" || !strings.HasPrefix(code, "+") {
		return Entry{}, fmt.Errorf("%w: missing country code", ErrInvalidPhone)
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		return Entry{}, fmt.Errorf("waitlist: mint entry id: %w", err)
	}

	entry := Entry{
		ID:          entryID,
		PhoneNumber: code + digits,
		CountryCode: code,
		CountryName: strings.TrimSpace(countryName),
		RawPhone:    digits,
		VisitorID:   visitorID.String(),
		CreatedAt:   s.clock().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&Entry{}).
			Where("phone_number = ?", entry.PhoneNumber).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicatePhone
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePhone) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return Entry{}, ErrDuplicatePhone
		}
		s.logger.Error("failed to store waitlist entry", zap.Error(err))
		return Entry{}, fmt.Errorf("waitlist: store entry: %w", err)
	}

	s.logger.Info("waitlist entry added", zap.String("country", entry.CountryName))
	return entry, nil
}

// Count returns the number of waitlist entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("waitlist: count entries: %w", err)
	}
	return total, nil
}

// ExportCSV streams every entry, oldest first, as CSV.
func (s *Service) ExportCSV(ctx context.Context, destination io.Writer) error {
	var entries []Entry
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&entries).Error
	if err != nil {
		return fmt.Errorf("waitlist: load entries: %w", err)
	}

	writer := csv.NewWriter(destination)
	header := []string{"phone_number", "country_code", "country_name", "raw_phone", "visitor_id", "created_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("waitlist: write csv header: %w", err)
	}
	for _, entry := range entries {
		record := []string{
			entry.PhoneNumber,
			entry.CountryCode,
			entry.CountryName,
			entry.RawPhone,
			entry.VisitorID,
			entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("waitlist: write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
