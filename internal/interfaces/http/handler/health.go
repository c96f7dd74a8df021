// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 可做健康检查的依赖
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BreakerStates 熔断器状态来源
type BreakerStates interface {
	States() map[string]string
}

// HealthDeps 健康检查依赖，可选依赖为空表示未启用
type HealthDeps struct {
	Version     string
	Postgres    HealthChecker
	Redis       HealthChecker
	Milvus      HealthChecker
	Meilisearch HealthChecker
	Breakers    BreakerStates
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	deps    HealthDeps
	timeout time.Duration
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		timeout: 2 * time.Second,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status   string                     `json:"status"`
	Checks   map[string]*readinessCheck `json:"checks,omitempty"`
	Breakers map[string]string          `json:"breakers,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Description 检查服务健康状态
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.deps.Version,
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查服务是否可以接收流量，postgres 与 redis 为必需依赖
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := map[string]*readinessCheck{
		"postgres": check(ctx, h.deps.Postgres, true),
		"redis":    check(ctx, h.deps.Redis, true),
		// 可选依赖失败只降级，不影响就绪态
		"milvus":      check(ctx, h.deps.Milvus, false),
		"meilisearch": check(ctx, h.deps.Meilisearch, false),
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if h.deps.Breakers != nil {
		resp.Breakers = h.deps.Breakers.States()
	}

	for _, name := range []string{"milvus", "meilisearch"} {
		if checks[name].Status == "degraded" {
			resp.Status = "degraded"
		}
	}
	for _, name := range []string{"postgres", "redis"} {
		if checks[name].Status != "ok" {
			resp.Status = "not_ready"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Description 检查服务是否存活
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

func check(ctx context.Context, dep HealthChecker, required bool) *readinessCheck {
	if dep == nil {
		if required {
			return &readinessCheck{Status: "missing", Error: "client not configured"}
		}
		return &readinessCheck{Status: "disabled"}
	}

	start := time.Now()
	err := dep.HealthCheck(ctx)
	result := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Error = err.Error()
		if required {
			result.Status = "error"
		} else {
			result.Status = "degraded"
		}
	}
	return result
}
