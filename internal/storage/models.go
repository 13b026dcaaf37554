package storage

import (
	"time"

	"gorm.io/gorm"
)

type SunTimesRecord struct {
	gorm.Model
	Provider  string  `gorm:"uniqueIndex:idx_sun_key" json:"provider"`
	Date      string  `gorm:"uniqueIndex:idx_sun_key" json:"date"`
	Latitude  float64 `gorm:"uniqueIndex:idx_sun_key" json:"latitude"`
	Longitude float64 `gorm:"uniqueIndex:idx_sun_key" json:"longitude"`

	Sunrise   time.Time `json:"sunrise"`
	Sunset    time.Time `gorm:"index" json:"sunset"`
	SolarNoon time.Time `json:"solar_noon"`
	DayLength int64     `json:"day_length_seconds"`
}
