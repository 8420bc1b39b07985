package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"weather-notify/internal/budget"
	"weather-notify/internal/models"
	"weather-notify/internal/store"

	"go.uber.org/zap"
)

// ErrBudgetExhausted is the defined terminal condition for budget-gated
// fetches. It is not an upstream failure.
var ErrBudgetExhausted = errors.New("daily API call budget exhausted")

// ErrInvalidDateRange signals a malformed history query range.
var ErrInvalidDateRange = errors.New("invalid date range")

// Cap on metered calls a single read request may trigger (one call per
// missing day; 90 covers the longest supported period in one request).
const maxDaysPerRequest = 90

const defaultRangeDays = 7

// Slope threshold in degrees per day separating rising/falling from stable.
const trendSlopeThreshold = 0.1

// HistoryService reconciles the local time-series store against the metered
// upstream history API and serves aggregate reads over it.
type HistoryService struct {
	provider WeatherProvider
	geocoder *Geocoder
	repo     *store.HistoryStore
	budget   *budget.Budget
	logger   *zap.Logger
}

func NewHistoryService(provider WeatherProvider, geocoder *Geocoder, repo *store.HistoryStore, b *budget.Budget, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		provider: provider,
		geocoder: geocoder,
		repo:     repo,
		budget:   b,
		logger:   logger,
	}
}

// Geocode resolves a free-text location through the shared cache.
func (s *HistoryService) Geocode(ctx context.Context, location string) (models.Location, error) {
	return s.geocoder.Geocode(ctx, location)
}

// GetMissingDays returns UTC day starts in [start, end] with no stored data.
func (s *HistoryService) GetMissingDays(city string, start, end int64, units string) ([]int64, error) {
	return s.repo.GetMissingDays(city, start, end, units)
}

// FetchDay fetches one day of hourly history from the metered upstream and
// persists it, recording the call against the daily budget first. Returns the
// number of newly inserted records, or ErrBudgetExhausted when the budget is
// spent. Duplicate rows are skipped, never overwritten.
func (s *HistoryService) FetchDay(ctx context.Context, city string, loc models.Location, dayStart int64, units string) (int, error) {
	if !s.budget.RecordCall() {
		return 0, ErrBudgetExhausted
	}

	// Noon UTC keeps the call inside the intended day.
	fetchTs := dayStart + 12*3600

	hours, err := s.provider.FetchTimemachine(ctx, loc.Lat, loc.Lon, fetchTs, units)
	if err != nil {
		return 0, fmt.Errorf("fetching history day for %s: %w", city, err)
	}

	records := make([]store.HistoryRecord, 0, len(hours))
	now := time.Now().Unix()
	for _, h := range hours {
		rec := store.HistoryRecord{
			City:          city,
			Lat:           loc.Lat,
			Lon:           loc.Lon,
			Timestamp:     h.Dt,
			Units:         units,
			Temperature:   h.Temp,
			FeelsLike:     h.FeelsLike,
			Humidity:      h.Humidity,
			Pressure:      h.Pressure,
			WindSpeed:     h.WindSpeed,
			WindDirection: h.WindDeg,
			Clouds:        h.Clouds,
			Visibility:    h.Visibility,
			FetchedAt:     now,
		}
		if len(h.Weather) > 0 {
			desc := h.Weather[0].Description
			icon := h.Weather[0].Icon
			rec.Description = &desc
			rec.Icon = &icon
		}
		if h.Rain != nil {
			rain := h.Rain.OneHour
			rec.Rain1h = &rain
		}
		if h.Snow != nil {
			snow := h.Snow.OneHour
			rec.Snow1h = &snow
		}
		records = append(records, rec)
	}

	return s.repo.InsertBatch(records)
}

// HistoryResponse is the hourly read view over stored history.
type HistoryResponse struct {
	City       string                `json:"city"`
	Units      string                `json:"units"`
	Period     string                `json:"period"`
	DataPoints []store.HistoryRecord `json:"data_points"`
}

// DailyHistoryResponse is the per-day aggregated read view.
type DailyHistoryResponse struct {
	City   string               `json:"city"`
	Units  string               `json:"units"`
	Period string               `json:"period"`
	Days   []store.DailySummary `json:"days"`
}

// TrendExtreme records an extreme value and the day it occurred.
type TrendExtreme struct {
	Value float64 `json:"value"`
	Date  string  `json:"date"`
}

// TrendSummary is the statistical summary over a run of daily aggregates.
type TrendSummary struct {
	AvgTemp            float64      `json:"avg_temp"`
	TempTrend          string       `json:"temp_trend"`
	MaxTemp            TrendExtreme `json:"max_temp"`
	MinTemp            TrendExtreme `json:"min_temp"`
	TotalPrecipitation float64      `json:"total_precipitation"`
	AvgHumidity        float64      `json:"avg_humidity"`
}

// TrendResponse bundles daily aggregates with their summary.
type TrendResponse struct {
	City    string               `json:"city"`
	Units   string               `json:"units"`
	Period  string               `json:"period"`
	Days    []store.DailySummary `json:"days"`
	Summary TrendSummary         `json:"summary"`
}

func normalizeRange(start, end int64) (int64, int64, error) {
	now := time.Now().Unix()
	if end == 0 {
		end = now
	}
	if start == 0 {
		start = end - defaultRangeDays*86400
	}
	if start >= end {
		return 0, 0, fmt.Errorf("%w: start must be before end", ErrInvalidDateRange)
	}
	return start, end, nil
}

// GetHistory returns hourly records for a city in [start, end] (zero values
// default to the trailing week), backfilling missing days first.
func (s *HistoryService) GetHistory(ctx context.Context, city string, start, end int64, units string) (*HistoryResponse, error) {
	start, end, err := normalizeRange(start, end)
	if err != nil {
		return nil, err
	}

	loc, err := s.geocoder.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	s.backfillRange(ctx, loc, start, end, units)

	records, err := s.repo.GetRange(loc.Name, start, end, units)
	if err != nil {
		return nil, err
	}

	return &HistoryResponse{
		City:       loc.Name,
		Units:      units,
		Period:     formatPeriod(start, end),
		DataPoints: records,
	}, nil
}

// GetDailyHistory returns per-day aggregates for a city in [start, end].
func (s *HistoryService) GetDailyHistory(ctx context.Context, city string, start, end int64, units string) (*DailyHistoryResponse, error) {
	start, end, err := normalizeRange(start, end)
	if err != nil {
		return nil, err
	}

	loc, err := s.geocoder.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	s.backfillRange(ctx, loc, start, end, units)

	days, err := s.repo.GetDailySummaries(loc.Name, start, end, units)
	if err != nil {
		return nil, err
	}
	roundSummaries(days)

	return &DailyHistoryResponse{
		City:   loc.Name,
		Units:  units,
		Period: formatPeriod(start, end),
		Days:   days,
	}, nil
}

// GetTrends returns daily aggregates plus a trend summary for a named period
// ("7d", "30d", "90d") or a custom range of at most 365 days.
func (s *HistoryService) GetTrends(ctx context.Context, city, period, units string, customStart, customEnd int64) (*TrendResponse, error) {
	now := time.Now().Unix()

	var start, end int64
	switch {
	case customStart != 0 && customEnd != 0:
		if customStart >= customEnd {
			return nil, fmt.Errorf("%w: start must be before end", ErrInvalidDateRange)
		}
		if (customEnd-customStart)/86400 > 365 {
			return nil, fmt.Errorf("%w: custom range cannot exceed 365 days", ErrInvalidDateRange)
		}
		start, end = customStart, customEnd
	default:
		var days int64
		switch period {
		case "7d":
			days = 7
		case "30d":
			days = 30
		case "90d":
			days = 90
		default:
			return nil, fmt.Errorf("%w: period must be 7d, 30d, or 90d", ErrInvalidDateRange)
		}
		start, end = now-days*86400, now
	}

	loc, err := s.geocoder.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}

	s.backfillRange(ctx, loc, start, end, units)

	days, err := s.repo.GetDailySummaries(loc.Name, start, end, units)
	if err != nil {
		return nil, err
	}
	roundSummaries(days)

	return &TrendResponse{
		City:    loc.Name,
		Units:   units,
		Period:  formatPeriod(start, end),
		Days:    days,
		Summary: ComputeTrendSummary(days),
	}, nil
}

// backfillRange fetches missing days before a read, bounded by
// maxDaysPerRequest. Per-day fetch failures are logged and skipped; the read
// proceeds over whatever data is stored.
func (s *HistoryService) backfillRange(ctx context.Context, loc models.Location, start, end int64, units string) {
	missing, err := s.repo.GetMissingDays(loc.Name, start, end, units)
	if err != nil {
		s.logger.Warn("Failed to compute missing days",
			zap.String("city", loc.Name),
			zap.Error(err))
		return
	}
	if len(missing) == 0 {
		return
	}

	if len(missing) > maxDaysPerRequest {
		missing = missing[:maxDaysPerRequest]
	}

	s.logger.Debug("Backfilling history before read",
		zap.String("city", loc.Name),
		zap.Int("missing_days", len(missing)))

	for _, day := range missing {
		if _, err := s.FetchDay(ctx, loc.Name, loc, day, units); err != nil {
			if errors.Is(err, ErrBudgetExhausted) {
				s.logger.Info("Budget exhausted during read backfill",
					zap.String("city", loc.Name))
				return
			}
			s.logger.Warn("Failed to fetch history day, skipping",
				zap.String("city", loc.Name),
				zap.Int64("day", day),
				zap.Error(err))
		}
	}
}

// ComputeTrendSummary computes mean, extremes, and a least-squares trend
// classification over ordered daily aggregates. Empty input yields a zero
// summary classified stable.
func ComputeTrendSummary(days []store.DailySummary) TrendSummary {
	if len(days) == 0 {
		return TrendSummary{TempTrend: "stable"}
	}

	n := float64(len(days))

	var sumTemp, sumHumidity, totalPrecip float64
	maxDay, minDay := days[0], days[0]
	for _, d := range days {
		sumTemp += d.TempAvg
		sumHumidity += d.HumidityAvg
		totalPrecip += d.PrecipitationTotal
		if d.TempMax > maxDay.TempMax {
			maxDay = d
		}
		if d.TempMin < minDay.TempMin {
			minDay = d
		}
	}

	return TrendSummary{
		AvgTemp:            round2(sumTemp / n),
		TempTrend:          trendDirection(days),
		MaxTemp:            TrendExtreme{Value: maxDay.TempMax, Date: maxDay.Date},
		MinTemp:            TrendExtreme{Value: minDay.TempMin, Date: minDay.Date},
		TotalPrecipitation: round2(totalPrecip),
		AvgHumidity:        round2(sumHumidity / n),
	}
}

// trendDirection fits daily mean temperature against day index with simple
// linear least squares and classifies the slope.
func trendDirection(days []store.DailySummary) string {
	n := float64(len(days))
	if n < 2 {
		return "stable"
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, d := range days {
		x := float64(i)
		sumX += x
		sumY += d.TempAvg
		sumXY += x * d.TempAvg
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if math.Abs(denominator) < 1e-12 {
		return "stable"
	}

	slope := (n*sumXY - sumX*sumY) / denominator
	switch {
	case slope > trendSlopeThreshold:
		return "rising"
	case slope < -trendSlopeThreshold:
		return "falling"
	default:
		return "stable"
	}
}

func roundSummaries(days []store.DailySummary) {
	for i := range days {
		days[i].TempAvg = round2(days[i].TempAvg)
		days[i].HumidityAvg = round2(days[i].HumidityAvg)
		days[i].WindSpeedAvg = round2(days[i].WindSpeedAvg)
		days[i].PrecipitationTotal = round2(days[i].PrecipitationTotal)
	}
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}

func formatPeriod(start, end int64) string {
	return fmt.Sprintf("%dd", (end-start)/86400)
}
