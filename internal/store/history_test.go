package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()
	s, err := OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func record(city string, ts int64, units string, temp float64) HistoryRecord {
	return HistoryRecord{
		City:        city,
		Timestamp:   ts,
		Units:       units,
		Temperature: temp,
		FeelsLike:   temp,
		Humidity:    60,
		Pressure:    1013,
		WindSpeed:   5.0,
		FetchedAt:   ts,
	}
}

func TestInsertBatchDedup(t *testing.T) {
	s := newTestHistoryStore(t)

	inserted, err := s.InsertBatch([]HistoryRecord{record("Chicago", 1700000000, "metric", 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	// Re-inserting the same natural key is a no-op, never an overwrite.
	inserted, err = s.InsertBatch([]HistoryRecord{record("Chicago", 1700000000, "metric", 99)})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	records, err := s.GetRange("Chicago", 1699999999, 1700000001, "metric")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 10.0, records[0].Temperature)
}

func TestInsertBatchDistinctUnitsAreSeparateRecords(t *testing.T) {
	s := newTestHistoryStore(t)

	inserted, err := s.InsertBatch([]HistoryRecord{
		record("Chicago", 1700000000, "metric", 10),
		record("Chicago", 1700000000, "imperial", 50),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
}

func TestGetMissingTimestampsHourlyStep(t *testing.T) {
	s := newTestHistoryStore(t)

	base := int64(1700000000) / 3600 * 3600
	_, err := s.InsertBatch([]HistoryRecord{
		record("Chicago", base, "metric", 10),
		record("Chicago", base+2*3600, "metric", 12),
	})
	require.NoError(t, err)

	missing, err := s.GetMissingTimestamps("Chicago", base, base+2*3600, 3600, "metric")
	require.NoError(t, err)
	assert.Equal(t, []int64{base + 3600}, missing)
}

func TestGetMissingDays(t *testing.T) {
	s := newTestHistoryStore(t)

	day := int64(1700000000) / 86400 * 86400
	// Any hourly record within a day marks the whole day as present.
	_, err := s.InsertBatch([]HistoryRecord{record("Chicago", day+7*3600, "metric", 10)})
	require.NoError(t, err)

	missing, err := s.GetMissingDays("Chicago", day, day+2*86400, "metric")
	require.NoError(t, err)
	assert.Equal(t, []int64{day + 86400, day + 2*86400}, missing)
}

func TestHasData(t *testing.T) {
	s := newTestHistoryStore(t)

	_, err := s.InsertBatch([]HistoryRecord{record("Chicago", 1700000000, "metric", 10)})
	require.NoError(t, err)

	ok, err := s.HasData("Chicago", 1700000000, "metric")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasData("Chicago", 1700000000, "imperial")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetDailySummaries(t *testing.T) {
	s := newTestHistoryStore(t)

	day := int64(1700000000) / 86400 * 86400
	rain := 1.5
	recs := []HistoryRecord{
		record("Chicago", day+6*3600, "metric", 10),
		record("Chicago", day+12*3600, "metric", 20),
	}
	recs[1].Rain1h = &rain
	_, err := s.InsertBatch(recs)
	require.NoError(t, err)

	summaries, err := s.GetDailySummaries("Chicago", day, day+86400-1, "metric")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 10.0, summaries[0].TempMin)
	assert.Equal(t, 20.0, summaries[0].TempMax)
	assert.Equal(t, 15.0, summaries[0].TempAvg)
	assert.Equal(t, 1.5, summaries[0].PrecipitationTotal)
}

func TestCleanupOld(t *testing.T) {
	s := newTestHistoryStore(t)

	_, err := s.InsertBatch([]HistoryRecord{
		record("Chicago", 1000, "metric", 10),
		record("Chicago", 2000, "metric", 11),
	})
	require.NoError(t, err)

	deleted, err := s.CleanupOld(1500)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
