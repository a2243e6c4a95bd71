package curation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/realtime"
)

const campaignDays = 6

// ErrInvalidDay indicates a day index outside 1..6.
var ErrInvalidDay = errors.New("curation: invalid campaign day")

// campaignLocation is the timezone the campaign runs in. Day attribution and
// the current-day computation follow Mexico City local time with an 18:00
// rollover: the evening of one day already belongs to the next campaign day,
// and the week wraps from Saturday evening back to day 1.
var campaignLocation = loadCampaignLocation()

func loadCampaignLocation() *time.Location {
	location, err := time.LoadLocation("America/Mexico_City")
	if err != nil {
		return time.FixedZone("CST", -6*60*60)
	}
	return location
}

// Themes returns the six day themes, creating default placeholders on first read.
func (s *Service) Themes(ctx context.Context) ([]DayTheme, error) {
	themes := make([]DayTheme, 0, campaignDays)
	for day := 1; day <= campaignDays; day++ {
		theme := DayTheme{Day: day}
		err := s.db.WithContext(ctx).
			Where(DayTheme{Day: day}).
			Attrs(DayTheme{
				Theme:     fmt.Sprintf("Day %d: Change this theme", day),
				CreatedAt: s.clock().UTC(),
			}).
			FirstOrCreate(&theme).Error
		if err != nil {
			return nil, fmt.Errorf("curation: load theme for day %d: %w", day, err)
		}
		themes = append(themes, theme)
	}
	return themes, nil
}

// UpdateTheme replaces the theme text for one campaign day.
func (s *Service) UpdateTheme(ctx context.Context, day int, theme string) error {
	if day < 1 || day > campaignDays {
		return fmt.Errorf("%w: %d", ErrInvalidDay, day)
	}
	trimmed := strings.TrimSpace(theme)
	if trimmed == "" {
		return fmt.Errorf("%w: empty theme for day %d", ErrInvalidDay, day)
	}
	record := DayTheme{Day: day}
	err := s.db.WithContext(ctx).
		Where(DayTheme{Day: day}).
		Assign(DayTheme{Theme: trimmed, UpdatedAt: s.clock().UTC()}).
		FirstOrCreate(&record).Error
	if err != nil {
		return fmt.Errorf("curation: update theme: %w", err)
	}
	s.publish(realtime.TopicSettings, nil)
	return nil
}

// CurrentTheme resolves the theme for the campaign day containing now.
func (s *Service) CurrentTheme(ctx context.Context, now time.Time) (DayTheme, error) {
	themes, err := s.Themes(ctx)
	if err != nil {
		return DayTheme{}, err
	}
	day := CampaignDay(now)
	for _, theme := range themes {
		if theme.Day == day {
			return theme, nil
		}
	}
	return DayTheme{}, fmt.Errorf("%w: %d", ErrInvalidDay, day)
}

// DayStats buckets every message into its campaign day.
func (s *Service) DayStats(ctx context.Context) ([]DayStat, error) {
	var messages []feed.Message
	err := s.db.WithContext(ctx).
		Select("id", "created_at").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("curation: load messages for day stats: %w", err)
	}

	stats := make([]DayStat, campaignDays)
	for i := range stats {
		stats[i].Day = i + 1
	}
	for _, message := range messages {
		createdAt, err := time.Parse(time.RFC3339Nano, message.CreatedAt)
		if err != nil {
			continue
		}
		day := CampaignDay(createdAt)
		if day >= 1 && day <= campaignDays {
			stats[day-1].Count++
		}
	}
	return stats, nil
}

// CampaignDay maps an instant to its campaign day (1..6).
func CampaignDay(instant time.Time) int {
	local := instant.In(campaignLocation)
	weekday := int(local.Weekday())
	if local.Hour() < 18 {
		if weekday == 0 {
			return campaignDays
		}
		return weekday
	}
	if weekday == 6 {
		return 1
	}
	return weekday + 1
}
