package handler

import (
	"net/http"

	"ricemill/internal/middleware"
	"ricemill/internal/model"
	"ricemill/internal/service"
	"ricemill/pkg/pagination"
	"ricemill/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProductionOrderHandler struct {
	orderService service.ProductionOrderService
}

func NewProductionOrderHandler(orderService service.ProductionOrderService) *ProductionOrderHandler {
	return &ProductionOrderHandler{orderService: orderService}
}

func (h *ProductionOrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/production-orders")
	{
		orders.GET("", middleware.RequirePermission(model.PermProductionRead), h.ListOrders)
		orders.GET("/statistics", middleware.RequirePermission(model.PermProductionRead), h.GetStatistics)
		orders.GET("/:id", middleware.RequirePermission(model.PermProductionRead), h.GetOrder)
		orders.POST("", middleware.RequirePermission(model.PermProductionWrite), h.CreateOrder)
		orders.PUT("/:id", middleware.RequirePermission(model.PermProductionWrite), h.UpdateOrder)
		orders.PUT("/:id/schedule", middleware.RequirePermission(model.PermProductionWrite), h.ScheduleOrder)
		orders.PUT("/:id/start", middleware.RequirePermission(model.PermProductionWrite), h.StartOrder)
		orders.PUT("/:id/complete", middleware.RequirePermission(model.PermProductionWrite), h.CompleteOrder)
		orders.PUT("/:id/cancel", middleware.RequirePermission(model.PermProductionWrite), h.CancelOrder)
		orders.DELETE("/:id", middleware.RequirePermission(model.PermProductionWrite), h.DeleteOrder)
	}
}

// CreateOrder creates a DRAFT production order
// @Summary      Create production order
// @Tags         production-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.CreateProductionOrderRequest  true  "Order header"
// @Success      201      {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/production-orders [post]
func (h *ProductionOrderHandler) CreateOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CreateProductionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// ListOrders returns production orders, newest first
// @Summary      List production orders
// @Tags         production-orders
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "DRAFT, SCHEDULED, IN_PROGRESS, COMPLETED or CANCELLED"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/production-orders [get]
func (h *ProductionOrderHandler) ListOrders(c *gin.Context) {
	p := pagination.Parse(c)
	orders, total, err := h.orderService.List(c.Request.Context(), service.ProductionOrderFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(orders, total)))
}

// GetOrder returns one production order
// @Summary      Get production order
// @Tags         production-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/production-orders/{id} [get]
func (h *ProductionOrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// UpdateOrder edits the header of a DRAFT or SCHEDULED order
// @Summary      Update production order
// @Tags         production-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                true  "Order ID"
// @Param        request  body      service.UpdateProductionOrderRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-orders/{id} [put]
func (h *ProductionOrderHandler) UpdateOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.UpdateProductionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	order, err := h.orderService.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// ScheduleOrder sets the date, machine and supervisor
// @Summary      Schedule production order
// @Tags         production-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                  true  "Order ID"
// @Param        request  body      service.ScheduleProductionOrderRequest  true  "Schedule"
// @Success      200      {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/production-orders/{id}/schedule [put]
func (h *ProductionOrderHandler) ScheduleOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.ScheduleProductionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	order, err := h.orderService.Schedule(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// StartOrder moves a SCHEDULED order with a machine to IN_PROGRESS
// @Summary      Start production order
// @Tags         production-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/production-orders/{id}/start [put]
func (h *ProductionOrderHandler) StartOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	order, err := h.orderService.Start(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CompleteOrder records actual output and closes the order
// @Summary      Complete production order
// @Tags         production-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                  true  "Order ID"
// @Param        request  body      service.CompleteProductionOrderRequest  true  "Actuals"
// @Success      200      {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-orders/{id}/complete [put]
func (h *ProductionOrderHandler) CompleteOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CompleteProductionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	order, err := h.orderService.Complete(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CancelOrder cancels an open order
// @Summary      Cancel production order
// @Tags         production-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Order ID"
// @Param        request  body      service.CancelRequest  true  "Reason"
// @Success      200      {object}  response.Response{data=service.ProductionOrderResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/production-orders/{id}/cancel [put]
func (h *ProductionOrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	order, err := h.orderService.Cancel(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// DeleteOrder removes a DRAFT order
// @Summary      Delete production order
// @Tags         production-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/production-orders/{id} [delete]
func (h *ProductionOrderHandler) DeleteOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.orderService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Production order deleted successfully"))
}

// GetStatistics returns counts, overdue orders and actual yield
// @Summary      Production order statistics
// @Tags         production-orders
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=model.OrderStatisticsResponse}
// @Router       /api/production-orders/statistics [get]
func (h *ProductionOrderHandler) GetStatistics(c *gin.Context) {
	stats, err := h.orderService.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
