package store

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// HistoryRecord is one (city, timestamp, units) hourly observation. The
// composite unique index makes duplicate inserts no-ops: already-fetched data
// is never refreshed.
type HistoryRecord struct {
	ID            uint     `gorm:"primarykey" json:"-"`
	City          string   `gorm:"index:idx_history_natural,unique;not null" json:"city"`
	Timestamp     int64    `gorm:"index:idx_history_natural,unique;not null" json:"timestamp"`
	Units         string   `gorm:"index:idx_history_natural,unique;not null" json:"units"`
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Temperature   float64  `json:"temperature"`
	FeelsLike     float64  `json:"feels_like"`
	Humidity      int      `json:"humidity"`
	Pressure      int      `json:"pressure"`
	WindSpeed     float64  `json:"wind_speed"`
	WindDirection *int     `json:"wind_direction,omitempty"`
	Clouds        *int     `json:"clouds,omitempty"`
	Visibility    *int     `json:"visibility,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Icon          *string  `json:"icon,omitempty"`
	Rain1h        *float64 `json:"rain_1h,omitempty"`
	Snow1h        *float64 `json:"snow_1h,omitempty"`
	FetchedAt     int64    `json:"fetched_at"`
}

func (HistoryRecord) TableName() string {
	return "weather_history"
}

// DailySummary is an aggregated per-day view of history records.
type DailySummary struct {
	Date               string  `json:"date"`
	TempMin            float64 `json:"temp_min"`
	TempMax            float64 `json:"temp_max"`
	TempAvg            float64 `json:"temp_avg"`
	HumidityAvg        float64 `json:"humidity_avg"`
	WindSpeedAvg       float64 `json:"wind_speed_avg"`
	PrecipitationTotal float64 `json:"precipitation_total"`
	DominantCondition  string  `json:"dominant_condition,omitempty"`
}

// HistoryStore persists hourly weather history in SQLite.
type HistoryStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenHistoryStore opens (or creates) the SQLite database at path and runs
// schema migration.
func OpenHistoryStore(path string, logger *zap.Logger) (*HistoryStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if err := db.AutoMigrate(&HistoryRecord{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	return &HistoryStore{db: db, logger: logger}, nil
}

// InsertBatch inserts records, silently skipping natural-key conflicts.
// Returns the number of newly inserted rows.
func (s *HistoryStore) InsertBatch(records []HistoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(records, 100)
	if result.Error != nil {
		return 0, fmt.Errorf("inserting history records: %w", result.Error)
	}

	return int(result.RowsAffected), nil
}

// GetRange returns records for a city within [start, end], ordered by time.
func (s *HistoryStore) GetRange(city string, start, end int64, units string) ([]HistoryRecord, error) {
	var records []HistoryRecord
	err := s.db.
		Where("city = ? AND timestamp >= ? AND timestamp <= ? AND units = ?", city, start, end, units).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("querying history range: %w", err)
	}
	return records, nil
}

// HasData reports whether a record exists for the exact natural key.
func (s *HistoryStore) HasData(city string, timestamp int64, units string) (bool, error) {
	var count int64
	err := s.db.Model(&HistoryRecord{}).
		Where("city = ? AND timestamp = ? AND units = ?", city, timestamp, units).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking history record: %w", err)
	}
	return count > 0, nil
}

// GetDailySummaries aggregates records per UTC day within [start, end].
func (s *HistoryStore) GetDailySummaries(city string, start, end int64, units string) ([]DailySummary, error) {
	var rows []DailySummary
	err := s.db.Raw(`
		SELECT
			date(timestamp, 'unixepoch') AS date,
			MIN(temperature) AS temp_min,
			MAX(temperature) AS temp_max,
			AVG(temperature) AS temp_avg,
			AVG(humidity) AS humidity_avg,
			AVG(wind_speed) AS wind_speed_avg,
			COALESCE(SUM(COALESCE(rain1h, 0.0) + COALESCE(snow1h, 0.0)), 0.0) AS precipitation_total,
			(SELECT h2.description FROM weather_history h2
			 WHERE h2.city = weather_history.city
			   AND date(h2.timestamp, 'unixepoch') = date(weather_history.timestamp, 'unixepoch')
			   AND h2.units = weather_history.units
			 GROUP BY h2.description
			 ORDER BY COUNT(*) DESC
			 LIMIT 1) AS dominant_condition
		FROM weather_history
		WHERE city = ? AND timestamp >= ? AND timestamp <= ? AND units = ?
		GROUP BY date(timestamp, 'unixepoch')
		ORDER BY date ASC`,
		city, start, end, units).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying daily summaries: %w", err)
	}
	return rows, nil
}

// GetMissingTimestamps returns the time buckets of the given step size within
// [start, end] that have no stored record. Both endpoints are inclusive
// bucket positions.
func (s *HistoryStore) GetMissingTimestamps(city string, start, end, step int64, units string) ([]int64, error) {
	var existing []int64
	err := s.db.Model(&HistoryRecord{}).
		Where("city = ? AND timestamp >= ? AND timestamp <= ? AND units = ?", city, start, end, units).
		Pluck("timestamp", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("querying existing timestamps: %w", err)
	}

	present := make(map[int64]struct{}, len(existing))
	for _, ts := range existing {
		present[ts/step*step] = struct{}{}
	}

	var missing []int64
	for ts := start / step * step; ts <= end; ts += step {
		if _, ok := present[ts]; !ok {
			missing = append(missing, ts)
		}
	}
	return missing, nil
}

// GetMissingDays returns the UTC day starts within [start, end] for which no
// hourly data at all is stored. One upstream call fills one day.
func (s *HistoryStore) GetMissingDays(city string, start, end int64, units string) ([]int64, error) {
	return s.GetMissingTimestamps(city, start, end, 86400, units)
}

// CleanupOld deletes records observed before the given timestamp. Returns the
// number of deleted rows.
func (s *HistoryStore) CleanupOld(before int64) (int, error) {
	result := s.db.Where("timestamp < ?", before).Delete(&HistoryRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old history records: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Info("Removed old history records",
			zap.Int64("count", result.RowsAffected),
			zap.Int64("before", before))
	}
	return int(result.RowsAffected), nil
}
