package utils

import (
	"context"

	"github.com/mmdatafocus/anomaly_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyRequestPath   = appctx.ContextKeyRequestPath
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetRequestPathFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRequestPath)
}

func SetRequestPathInContext(ctx context.Context, path string) context.Context {
	return appctx.Set(ctx, ContextKeyRequestPath, path)
}
