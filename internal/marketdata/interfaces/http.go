// Package interfaces 市场数据接口层
package interfaces

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/defitreasury/internal/marketdata/application"
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
	marketdata := r.Group("/marketdata")
	{
		marketdata.GET("/rates/latest", h.LatestRate)
		marketdata.GET("/rates/series", h.RateSeries)
	}
}

// LatestRate 最近一条归一化观测
func (h *HTTPHandler) LatestRate(c *gin.Context) {
	protocol := c.Query("protocol")
	asset := c.Query("asset")
	if protocol == "" || asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "protocol and asset are required"})
		return
	}

	record, err := h.queryService.LatestRate(c.Request.Context(), protocol, asset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no observations for market"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// RateSeries 按时间升序返回最近的归一化观测序列
func (h *HTTPHandler) RateSeries(c *gin.Context) {
	protocol := c.Query("protocol")
	asset := c.Query("asset")
	if protocol == "" || asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "protocol and asset are required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	records, err := h.queryService.RateSeries(c.Request.Context(), protocol, asset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": records, "count": len(records)})
}
