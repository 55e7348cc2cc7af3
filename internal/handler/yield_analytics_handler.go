package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ricemill/internal/apperror"
	"ricemill/internal/middleware"
	"ricemill/internal/model"
	"ricemill/internal/service"
	"ricemill/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type YieldAnalyticsHandler struct {
	analyticsService service.YieldAnalyticsService
	store            *cache.Cache
	ttl              time.Duration
}

// NewYieldAnalyticsHandler creates the analytics handler. A nil store
// disables response caching.
func NewYieldAnalyticsHandler(analyticsService service.YieldAnalyticsService, store *cache.Cache, ttl time.Duration) *YieldAnalyticsHandler {
	return &YieldAnalyticsHandler{analyticsService: analyticsService, store: store, ttl: ttl}
}

func (h *YieldAnalyticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/yield-analytics")
	group.Use(middleware.RequirePermission(model.PermAnalyticsRead))
	if h.store != nil {
		group.Use(middleware.Cache(h.store, h.ttl))
	}
	{
		group.GET("/overall", h.GetOverall)
		group.GET("/trends", h.GetTrends)
		group.GET("/by-variety", h.GetByVariety)
		group.GET("/by-machine", h.GetByMachine)
		group.GET("/variance", h.GetVariance)
		group.GET("/low-yield", h.GetLowYield)
		group.GET("/high-yield", h.GetHighYield)
		group.GET("/performance", h.GetPerformance)
	}
}

// parseRange reads from/to. A date-only "to" covers that whole day.
func parseRange(c *gin.Context) (service.DateRange, error) {
	var r service.DateRange
	var err error
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		if r.From, _, err = parseBound(raw, "from"); err != nil {
			return r, err
		}
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		var dateOnly bool
		if r.To, dateOnly, err = parseBound(raw, "to"); err != nil {
			return r, err
		}
		if dateOnly {
			r.To = r.To.AddDate(0, 0, 1)
		}
	}
	return r, nil
}

func parseBound(raw, name string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, apperror.Validation("invalid %s %q, expected RFC3339 or YYYY-MM-DD", name, raw)
}

func parseThreshold(c *gin.Context) (*float64, error) {
	raw := strings.TrimSpace(c.Query("threshold"))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 100 {
		return nil, apperror.Validation("threshold must be a number between 0 and 100, got %q", raw)
	}
	return &v, nil
}

// GetOverall returns aggregate yield statistics
// @Summary      Overall yield statistics
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date (RFC3339 or YYYY-MM-DD), default 30 days ago"
// @Param        to    query     string  false  "End date, exclusive for RFC3339, inclusive for YYYY-MM-DD"
// @Success      200   {object}  response.Response{data=service.OverallYieldResponse}
// @Router       /api/yield-analytics/overall [get]
func (h *YieldAnalyticsHandler) GetOverall(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.analyticsService.Overall(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetTrends returns the yield series bucketed by day, ISO week or month
// @Summary      Yield trends
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from      query     string  false  "Start date"
// @Param        to        query     string  false  "End date"
// @Param        group_by  query     string  false  "DAILY, WEEKLY or MONTHLY (default DAILY)"
// @Success      200       {object}  response.Response{data=service.YieldTrendResponse}
// @Router       /api/yield-analytics/trends [get]
func (h *YieldAnalyticsHandler) GetTrends(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.analyticsService.Trends(c.Request.Context(), r, c.Query("group_by"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetByVariety ranks paddy varieties by mean total yield
// @Summary      Yield by paddy variety
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date"
// @Param        to    query     string  false  "End date"
// @Success      200   {object}  response.Response{data=service.VarietyYieldResponse}
// @Router       /api/yield-analytics/by-variety [get]
func (h *YieldAnalyticsHandler) GetByVariety(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.analyticsService.ByVariety(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetByMachine groups yield and utilization by the order's machine
// @Summary      Yield by machine
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date"
// @Param        to    query     string  false  "End date"
// @Success      200   {object}  response.Response{data=service.MachineYieldResponse}
// @Router       /api/yield-analytics/by-machine [get]
func (h *YieldAnalyticsHandler) GetByMachine(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.analyticsService.ByMachine(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetVariance returns dispersion of total yield and the inconsistent batches
// @Summary      Yield variance analysis
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date"
// @Param        to    query     string  false  "End date"
// @Success      200   {object}  response.Response{data=service.VarianceResponse}
// @Router       /api/yield-analytics/variance [get]
func (h *YieldAnalyticsHandler) GetVariance(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.analyticsService.Variance(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetLowYield lists batches below the threshold
// @Summary      Low yield batches
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        threshold  query     number  false  "Total yield percent, default 60"
// @Param        from       query     string  false  "Start date, default 30 days before to"
// @Param        to         query     string  false  "End date, default end of today"
// @Success      200        {object}  response.Response{data=service.ThresholdBatchesResponse}
// @Router       /api/yield-analytics/low-yield [get]
func (h *YieldAnalyticsHandler) GetLowYield(c *gin.Context) {
	h.threshold(c, h.analyticsService.LowYield)
}

// GetHighYield lists batches at or above the threshold
// @Summary      High yield batches
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        threshold  query     number  false  "Total yield percent, default 70"
// @Param        from       query     string  false  "Start date, default 30 days before to"
// @Param        to         query     string  false  "End date, default end of today"
// @Success      200        {object}  response.Response{data=service.ThresholdBatchesResponse}
// @Router       /api/yield-analytics/high-yield [get]
func (h *YieldAnalyticsHandler) GetHighYield(c *gin.Context) {
	h.threshold(c, h.analyticsService.HighYield)
}

type thresholdQuery func(ctx context.Context, r service.DateRange, threshold *float64) (service.ThresholdBatchesResponse, error)

func (h *YieldAnalyticsHandler) threshold(c *gin.Context, query thresholdQuery) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := parseThreshold(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := query(c.Request.Context(), r, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GetPerformance lists batches by quality score with top and bottom performers
// @Summary      Batch performance details
// @Tags         yield-analytics
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date"
// @Param        to    query     string  false  "End date"
// @Success      200   {object}  response.Response{data=service.PerformanceResponse}
// @Router       /api/yield-analytics/performance [get]
func (h *YieldAnalyticsHandler) GetPerformance(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.analyticsService.Performance(c.Request.Context(), r)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
