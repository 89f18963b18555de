// Package interfaces 绩效分析接口层
package interfaces

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/defitreasury/internal/analytics/application"
	"github.com/wyfcoding/defitreasury/internal/analytics/domain"
)

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	queryService *application.QueryService
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(queryService *application.QueryService) *HTTPHandler {
	return &HTTPHandler{queryService: queryService}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	analytics := r.Group("/analytics")
	{
		analytics.GET("/benchmarks", h.ListBenchmarks)
		analytics.GET("/benchmarks/:type", h.GetBenchmark)

		analytics.GET("/runs/:run_id/report", h.RunReport)
		analytics.POST("/compare", h.CompareRun)
	}
}

// errorStatus 领域错误到 HTTP 状态码的映射
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownBenchmark),
		errors.Is(err, domain.ErrInsufficientDuration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ListBenchmarks 基准目录，支持 category 过滤
func (h *HTTPHandler) ListBenchmarks(c *gin.Context) {
	benchmarks := h.queryService.ListBenchmarks(c.Request.Context(), c.Query("category"))
	c.JSON(http.StatusOK, gin.H{"benchmarks": benchmarks})
}

// GetBenchmark 单个基准定义
func (h *HTTPHandler) GetBenchmark(c *gin.Context) {
	benchmark, err := h.queryService.GetBenchmark(c.Request.Context(), c.Param("type"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownBenchmark) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, benchmark)
}

// RunReport 一次模拟运行的绩效报告
func (h *HTTPHandler) RunReport(c *gin.Context) {
	riskFree, err := strconv.ParseFloat(c.DefaultQuery("risk_free_rate", "0"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid risk_free_rate"})
		return
	}

	report, err := h.queryService.RunReport(c.Request.Context(), c.Param("run_id"), riskFree)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// CompareRunRequest 运行与基准对比请求
type CompareRunRequest struct {
	RunID        string  `json:"run_id" binding:"required"`
	Benchmark    string  `json:"benchmark" binding:"required"`
	Seed         uint64  `json:"seed"`
	RiskFreeRate float64 `json:"risk_free_rate"`
}

// CompareRun 把运行表现与指定基准对比
func (h *HTTPHandler) CompareRun(c *gin.Context) {
	var req CompareRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comparison, err := h.queryService.CompareRun(c.Request.Context(), application.CompareRunQuery{
		RunID:        req.RunID,
		Benchmark:    req.Benchmark,
		Seed:         req.Seed,
		RiskFreeRate: req.RiskFreeRate,
	})
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	if comparison == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, comparison)
}
