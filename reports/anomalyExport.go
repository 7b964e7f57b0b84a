package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/utils"
	"github.com/xuri/excelize/v2"
)

const (
	AnomalySheet     = "Anomalies"
	ExcelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var anomalyHeaders = []string{
	"Id", "ExternalId", "Type", "Severity", "Status", "Source", "DetectedAt", "ResolvedAt", "Resolution",
}

func anomalyCellValues(a models.Anomaly) []interface{} {
	resolvedAt := ""
	if a.ResolvedAt != nil {
		resolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		a.ID,
		a.ExternalId,
		string(a.Type),
		string(a.Severity),
		string(a.Status),
		a.Source,
		a.DetectedAt.UTC().Format(time.RFC3339),
		resolvedAt,
		utils.DereferencePtr(a.Resolution, ""),
	}
}

// BuildAnomalyWorkbook lays rows out one per line under a header row, in the order given.
func BuildAnomalyWorkbook(rows []models.Anomaly) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", AnomalySheet); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetRow(AnomalySheet, "A1", &anomalyHeaders); err != nil {
		f.Close()
		return nil, err
	}
	for i, row := range rows {
		values := anomalyCellValues(row)
		if err := f.SetSheetRow(AnomalySheet, "A"+fmt.Sprint(i+2), &values); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func WriteAnomalyWorkbook(w io.Writer, rows []models.Anomaly) error {
	f, err := BuildAnomalyWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
