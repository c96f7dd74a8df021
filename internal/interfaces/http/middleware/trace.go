package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"hybrid-ranking-api/pkg/logger"
)

// Trace 追踪中间件链，skipPaths 中的系统端点不产生 span
func Trace(serviceName string, skipPaths ...string) []gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	filter := func(r *http.Request) bool {
		_, ok := skip[r.URL.Path]
		return !ok
	}
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName, otelgin.WithFilter(filter)),
		traceContext(),
	}
}

// traceContext 将 trace_id/span_id 写入日志上下文与响应头
func traceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		if sc.IsValid() {
			traceID := sc.TraceID().String()
			spanID := sc.SpanID().String()

			c.Set("trace_id", traceID)
			c.Set("span_id", spanID)

			ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
			ctx = logger.WithContext(ctx, logger.SpanIDKey, spanID)
			c.Request = c.Request.WithContext(ctx)
			c.Header("X-Trace-ID", traceID)
		}
		c.Next()
	}
}
