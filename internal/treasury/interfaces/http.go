// Package interfaces 金库模拟接口层
package interfaces

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/defitreasury/internal/treasury/application"
	"github.com/wyfcoding/defitreasury/internal/treasury/domain"
)

// HTTPHandler HTTP 接口处理器
type HTTPHandler struct {
	commandService *application.CommandService
	queryService   *application.QueryService
}

// NewHTTPHandler 创建 HTTP 处理器
func NewHTTPHandler(
	commandService *application.CommandService,
	queryService *application.QueryService,
) *HTTPHandler {
	return &HTTPHandler{
		commandService: commandService,
		queryService:   queryService,
	}
}

// RegisterRoutes 注册路由
func (h *HTTPHandler) RegisterRoutes(r *gin.RouterGroup) {
	treasury := r.Group("/treasury")
	{
		treasury.POST("/strategies", h.CreateStrategy)
		treasury.GET("/strategies", h.ListStrategies)
		treasury.GET("/strategies/:name", h.GetStrategy)
		treasury.PUT("/strategies/:name/active", h.SetStrategyActive)

		treasury.POST("/simulations", h.StartSimulation)
		treasury.GET("/simulations", h.ListRecentRuns)
		treasury.GET("/simulations/:run_id", h.GetRun)
		treasury.GET("/simulations/:run_id/snapshots", h.GetSnapshots)

		treasury.GET("/reports/latest", h.LatestReport)
	}
}

// errorStatus 领域错误到 HTTP 状态码的映射
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrStrategyNotFound), errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRiskParameter),
		errors.Is(err, domain.ErrInsufficientCapital),
		errors.Is(err, domain.ErrDuplicatePosition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AllocationRequest 策略配置中的单项资金分配
type AllocationRequest struct {
	Protocol string          `json:"protocol" binding:"required"`
	Asset    string          `json:"asset" binding:"required"`
	Weight   decimal.Decimal `json:"weight" binding:"required"`
}

// CreateStrategyRequest 创建策略请求
type CreateStrategyRequest struct {
	Name            string              `json:"name" binding:"required"`
	Description     string              `json:"description"`
	RiskLevel       string              `json:"risk_level" binding:"required"`
	HarvestInterval int                 `json:"harvest_interval"`
	Allocations     []AllocationRequest `json:"allocations" binding:"required"`
}

// CreateStrategy 创建策略
func (h *HTTPHandler) CreateStrategy(c *gin.Context) {
	var req CreateStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allocations := make([]domain.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocations = append(allocations, domain.Allocation{
			Protocol: domain.Protocol(a.Protocol),
			Asset:    a.Asset,
			Weight:   a.Weight,
		})
	}
	cmd := application.CreateStrategyCommand{
		Name:            req.Name,
		Description:     req.Description,
		RiskLevel:       req.RiskLevel,
		HarvestInterval: req.HarvestInterval,
		Allocations:     allocations,
	}

	strategyID, err := h.commandService.CreateStrategy(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"strategy_id": strategyID})
}

// ListStrategies 列出启用中的策略
func (h *HTTPHandler) ListStrategies(c *gin.Context) {
	strategies, err := h.queryService.ListStrategies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

// GetStrategy 按名称查询策略
func (h *HTTPHandler) GetStrategy(c *gin.Context) {
	strategy, err := h.queryService.GetStrategy(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if strategy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// SetStrategyActiveRequest 启停策略请求
type SetStrategyActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetStrategyActive 启用或停用策略
func (h *HTTPHandler) SetStrategyActive(c *gin.Context) {
	var req SetStrategyActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.commandService.SetStrategyActive(c.Request.Context(), c.Param("name"), *req.Active); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}

// StartSimulationRequest 启动模拟请求
type StartSimulationRequest struct {
	StrategyName   string          `json:"strategy_name" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	Days           int             `json:"days" binding:"required"`
	InitialCapital decimal.Decimal `json:"initial_capital" binding:"required"`
	Asset          string          `json:"asset"`
	Seed           uint64          `json:"seed"`
	Regime         string          `json:"regime"`
	HarvestGasCost decimal.Decimal `json:"harvest_gas_cost"`
	EnableCosts    bool            `json:"enable_costs"`
}

// StartSimulation 启动模拟
func (h *HTTPHandler) StartSimulation(c *gin.Context) {
	var req StartSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := application.StartSimulationCommand{
		StrategyName:   req.StrategyName,
		Name:           req.Name,
		Days:           req.Days,
		InitialCapital: req.InitialCapital,
		Asset:          req.Asset,
		Seed:           req.Seed,
		Regime:         req.Regime,
		HarvestGasCost: req.HarvestGasCost,
		EnableCosts:    req.EnableCosts,
	}

	runID, err := h.commandService.StartSimulation(c.Request.Context(), cmd)
	if err != nil {
		body := gin.H{"error": err.Error()}
		if runID != "" {
			body["run_id"] = runID
		}
		c.JSON(errorStatus(err), body)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"run_id": runID})
}

// ListRecentRuns 列出最近的模拟运行
func (h *HTTPHandler) ListRecentRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.queryService.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun 查询单次模拟运行
func (h *HTTPHandler) GetRun(c *gin.Context) {
	run, err := h.queryService.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetSnapshots 查询一次运行的组合快照序列
func (h *HTTPHandler) GetSnapshots(c *gin.Context) {
	snapshots, err := h.queryService.GetSnapshots(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots, "count": len(snapshots)})
}

// LatestReport 最近完成运行的报告
func (h *HTTPHandler) LatestReport(c *gin.Context) {
	run, err := h.queryService.LatestReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed runs"})
		return
	}
	c.JSON(http.StatusOK, run)
}
