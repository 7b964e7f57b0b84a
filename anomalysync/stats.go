package anomalysync

import "github.com/mmdatafocus/anomaly_backend/models"

// Aggregate trusts an upstream report as is and otherwise counts rows.
func Aggregate(report Fetch[models.StatsSnapshot], rows []models.Anomaly) models.StatsSnapshot {
	if report.IsUpstream() {
		return report.Data
	}
	return ComputeStats(rows)
}

// ComputeStats counts rows. Ignored rows are neither resolved nor pending, and
// breakdowns omit values with no rows.
func ComputeStats(rows []models.Anomaly) models.StatsSnapshot {
	stats := models.StatsSnapshot{
		Total:      len(rows),
		BySeverity: map[string]int{},
		ByType:     map[string]int{},
		ByStatus:   map[string]int{},
	}
	for _, row := range rows {
		if row.Status == models.AnomalyStatusResolved {
			stats.Resolved++
		}
		if row.Status.IsPending() {
			stats.Pending++
		}
		stats.BySeverity[string(row.Severity)]++
		stats.ByType[string(row.Type)]++
		stats.ByStatus[string(row.Status)]++
	}
	return stats
}
