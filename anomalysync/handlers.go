package anomalysync

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/reports"
	"github.com/mmdatafocus/anomaly_backend/utils"
)

const SourceHeader = "X-Anomaly-Source"

type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required,max=4096"`
}

// RegisterRoutes mounts the anomaly API under r.
func RegisterRoutes(r gin.IRouter, svc *Service) {
	api := r.Group("/api")
	api.GET("/anomalies", ListHandler(svc))
	api.GET("/anomalies/filter", FilterHandler(svc))
	api.GET("/anomalies/stats", StatsHandler(svc))
	api.GET("/anomalies/sync-status", SyncStatusHandler(svc))
	api.GET("/anomalies/export", ExportHandler(svc))
	api.GET("/anomalies/:id", GetByIdHandler(svc))
	api.POST("/anomalies/:id/resolve", ResolveHandler(svc))
	api.POST("/anomalies/detect", DetectHandler(svc))
	api.GET("/metrics/global", GlobalMetricsHandler(svc))
}

func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header(SourceHeader, string(result.Source))
		c.JSON(http.StatusOK, result.Anomalies)
	}
}

func FilterHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input FilterInput
		if err := c.ShouldBindQuery(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		rows, err := svc.Filter(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func StatsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := svc.Stats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header(SourceHeader, string(result.Source))
		c.JSON(http.StatusOK, result.Stats)
	}
}

func GetByIdHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		row, err := svc.GetById(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func ResolveHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		row, err := svc.Resolve(c.Request.Context(), id, req.Resolution)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "anomaly": row})
	}
}

func DetectHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ack, err := svc.Detect(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", ack)
	}
}

func SyncStatusHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := svc.SyncStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync status unavailable"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func ExportHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.LocalList(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", reports.ExcelContentType)
		c.Header("Content-Disposition", "attachment; filename=anomalies.xlsx")
		c.Status(http.StatusOK)
		if err := reports.WriteAnomalyWorkbook(c.Writer, rows); err != nil {
			_ = c.Error(err)
		}
	}
}

func GlobalMetricsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.GlobalMetrics(c.Request.Context()))
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, models.ErrAnomalyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "anomaly not found"})
	case errors.Is(err, ErrResolutionRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDetectInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUpstreamDetectFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": ErrUpstreamDetectFailed.Error()})
	case errors.Is(err, models.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
