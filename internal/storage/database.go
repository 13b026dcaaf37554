package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"solar-clock/internal/sunset"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&SunTimesRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

// LookupSunTimes implements sunset.Store.
func (d *Database) LookupSunTimes(provider, date string, lat, lon float64) (*sunset.Times, bool, error) {
	var rec SunTimesRecord
	result := d.db.Where("provider = ? AND date = ? AND latitude = ? AND longitude = ?", provider, date, lat, lon).
		First(&rec)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if result.Error != nil {
		return nil, false, result.Error
	}
	return rec.toTimes(), true, nil
}

// SaveSunTimes implements sunset.Store. An existing entry for the same key is
// overwritten.
func (d *Database) SaveSunTimes(t *sunset.Times) error {
	rec := &SunTimesRecord{
		Provider:  t.Provider,
		Date:      t.Date,
		Latitude:  t.Latitude,
		Longitude: t.Longitude,
		Sunrise:   t.Sunrise,
		Sunset:    t.Sunset,
		SolarNoon: t.SolarNoon,
		DayLength: int64(t.DayLength / time.Second),
	}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "date"}, {Name: "latitude"}, {Name: "longitude"}},
		DoUpdates: clause.AssignmentColumns([]string{"sunrise", "sunset", "solar_noon", "day_length", "updated_at"}),
	}).Create(rec).Error
}

func (d *Database) GetRecentSunTimes(limit int) ([]SunTimesRecord, error) {
	var records []SunTimesRecord
	result := d.db.Order("sunset desc").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// CleanOldSunTimes removes entries whose sunset is older than olderThan
// relative to now.
func (d *Database) CleanOldSunTimes(now time.Time, olderThan time.Duration) (int64, error) {
	cutoff := now.Add(-olderThan)
	result := d.db.Unscoped().Where("sunset < ?", cutoff).Delete(&SunTimesRecord{})
	return result.RowsAffected, result.Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SunTimesRecord) toTimes() *sunset.Times {
	return &sunset.Times{
		Provider:  r.Provider,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Date:      r.Date,
		Sunrise:   r.Sunrise,
		Sunset:    r.Sunset,
		SolarNoon: r.SolarNoon,
		DayLength: time.Duration(r.DayLength) * time.Second,
	}
}
