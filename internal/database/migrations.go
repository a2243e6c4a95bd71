package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cerberodev/sapo/internal/curation"
)

const (
	migrationSeedSettings   = "2026-08-01_seed_settings"
	migrationSeedDayThemes  = "2026-08-01_seed_day_themes"
	campaignDayCount        = 6
	placeholderThemePattern = "Day %d: Change this theme"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedSettings, apply: seedSettings},
		{name: migrationSeedDayThemes, apply: seedDayThemes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func seedSettings(db *gorm.DB) error {
	setting := curation.Setting{
		ID:        1,
		FeedMode:  "auto",
		UpdatedAt: time.Now().UTC(),
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error
}

func seedDayThemes(db *gorm.DB) error {
	now := time.Now().UTC()
	themes := make([]curation.DayTheme, 0, campaignDayCount)
	for day := 1; day <= campaignDayCount; day++ {
		themes = append(themes, curation.DayTheme{
			Day:       day,
			Theme:     fmt.Sprintf(placeholderThemePattern, day),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&themes).Error
}
