package curation

import "time"

// Setting is the single store-wide configuration row: the feed mode switch
// and the starting offset added to the displayed total message count.
// Writes are last-write-wins.
type Setting struct {
	ID          int       `gorm:"column:id;primaryKey"`
	FeedMode    string    `gorm:"column:feed_mode;size:16;not null;default:auto"`
	CountOffset int64     `gorm:"column:count_offset;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Setting) TableName() string {
	return "settings"
}

const settingRowID = 1

// DayTheme is one of the six day-keyed campaign themes shown above the feed.
type DayTheme struct {
	Day       int       `gorm:"column:day;primaryKey"`
	Theme     string    `gorm:"column:theme;size:200;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (DayTheme) TableName() string {
	return "day_themes"
}

// Stats summarises the admin dashboard counters.
type Stats struct {
	TotalMessages      int64
	TotalVisitors      int64
	AvgMessagesPerUser float64
	TotalShares        int64
}

// DayStat is the message volume attributed to one campaign day.
type DayStat struct {
	Day   int
	Count int64
}
