package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/anomaly_backend/utils"
)

const CorrelationIdHeader = "x-correlation-id"

// RequestContextMiddleware stamps each request with a correlation id, taken
// from the caller when present, and its path.
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationIdHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		ctx = utils.SetRequestPathInContext(ctx, c.Request.URL.Path)
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationIdHeader, cid)
		c.Next()
	}
}
