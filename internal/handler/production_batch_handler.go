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

type ProductionBatchHandler struct {
	batchService service.ProductionBatchService
}

func NewProductionBatchHandler(batchService service.ProductionBatchService) *ProductionBatchHandler {
	return &ProductionBatchHandler{batchService: batchService}
}

func (h *ProductionBatchHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := middleware.RequirePermission(model.PermProductionRead)
	write := middleware.RequirePermission(model.PermProductionWrite)

	batches := router.Group("/api/production-batches")
	{
		batches.GET("", read, h.ListBatches)
		batches.GET("/summary", read, h.GetSummary)
		batches.GET("/:id", read, h.GetBatch)
		batches.POST("", write, h.CreateBatch)
		batches.PUT("/:id", write, h.UpdateBatch)
		batches.POST("/:id/inputs", write, h.RecordInput)
		batches.POST("/:id/outputs", write, h.RecordOutput)
		batches.DELETE("/:id/lines/:lineId", write, h.RemoveLine)
		batches.PUT("/:id/start", write, h.StartBatch)
		batches.PUT("/:id/complete", write, h.CompleteBatch)
		batches.POST("/:id/calculate-yield", write, h.CalculateYield)
		batches.PUT("/:id/verify", middleware.RequirePermission(model.PermProductionVerify), h.VerifyBatch)
		batches.PUT("/:id/cancel", write, h.CancelBatch)
		batches.DELETE("/:id", write, h.DeleteBatch)
	}
}

// CreateBatch plans a milling batch
// @Summary      Create production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.CreateProductionBatchRequest  true  "Batch header"
// @Success      201      {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/production-batches [post]
func (h *ProductionBatchHandler) CreateBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CreateProductionBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	batch, err := h.batchService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// ListBatches returns batches, most recent batch date first
// @Summary      List production batches
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        status               query     string  false  "Batch status"
// @Param        production_order_id  query     string  false  "Parent order ID"
// @Param        page                 query     int     false  "Page number (default 1)"
// @Param        limit                query     int     false  "Items per page (default 20)"
// @Success      200                  {object}  response.Response{data=response.Page}
// @Router       /api/production-batches [get]
func (h *ProductionBatchHandler) ListBatches(c *gin.Context) {
	p := pagination.Parse(c)
	batches, total, err := h.batchService.List(c.Request.Context(), service.ProductionBatchFilter{
		Status:            c.Query("status"),
		ProductionOrderID: c.Query("production_order_id"),
		Page:              p.Page,
		Limit:             p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(batches, total)))
}

// GetBatch returns a batch with line items, totals and yield record
// @Summary      Get production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/production-batches/{id} [get]
func (h *ProductionBatchHandler) GetBatch(c *gin.Context) {
	batch, err := h.batchService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// UpdateBatch edits the header of a PLANNED or IN_PROGRESS batch
// @Summary      Update production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                                true  "Batch ID"
// @Param        request  body      service.UpdateProductionBatchRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-batches/{id} [put]
func (h *ProductionBatchHandler) UpdateBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.UpdateProductionBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	batch, err := h.batchService.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// RecordInput adds a paddy input line
// @Summary      Record batch input
// @Tags         production-batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Batch ID"
// @Param        request  body      service.RecordInputRequest  true  "Paddy charged"
// @Success      201      {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-batches/{id}/inputs [post]
func (h *ProductionBatchHandler) RecordInput(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.RecordInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	batch, err := h.batchService.RecordInput(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// RecordOutput adds a categorized output line
// @Summary      Record batch output
// @Tags         production-batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Batch ID"
// @Param        request  body      service.RecordOutputRequest  true  "Output weighed"
// @Success      201      {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-batches/{id}/outputs [post]
func (h *ProductionBatchHandler) RecordOutput(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.RecordOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	batch, err := h.batchService.RecordOutput(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// RemoveLine deletes an input or output line
// @Summary      Remove batch line
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        id      path      string  true  "Batch ID"
// @Param        lineId  path      string  true  "Line ID"
// @Success      200     {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      404     {object}  response.Response
// @Router       /api/production-batches/{id}/lines/{lineId} [delete]
func (h *ProductionBatchHandler) RemoveLine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	batch, err := h.batchService.RemoveLine(c.Request.Context(), userID, c.Param("id"), c.Param("lineId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// StartBatch moves a PLANNED batch to IN_PROGRESS
// @Summary      Start production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/production-batches/{id}/start [put]
func (h *ProductionBatchHandler) StartBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	batch, err := h.batchService.Start(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// CompleteBatch closes the milling run without calculating yield
// @Summary      Complete production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true   "Batch ID"
// @Param        request  body      service.CompleteBatchRequest  false  "Quality assessment"
// @Success      200      {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-batches/{id}/complete [put]
func (h *ProductionBatchHandler) CompleteBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CompleteBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindingError(c, err)
			return
		}
	}

	batch, err := h.batchService.Complete(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// CalculateYield rebuilds the yield record from the recorded weights
// @Summary      Calculate batch yield
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/production-batches/{id}/calculate-yield [post]
func (h *ProductionBatchHandler) CalculateYield(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	batch, err := h.batchService.CalculateYield(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// VerifyBatch signs off a COMPLETED batch with a yield record
// @Summary      Verify production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/production-batches/{id}/verify [put]
func (h *ProductionBatchHandler) VerifyBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	batch, err := h.batchService.Verify(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// CancelBatch cancels a batch that is not yet verified
// @Summary      Cancel production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Batch ID"
// @Param        request  body      service.CancelRequest  true  "Reason"
// @Success      200      {object}  response.Response{data=service.ProductionBatchResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/production-batches/{id}/cancel [put]
func (h *ProductionBatchHandler) CancelBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	batch, err := h.batchService.Cancel(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// DeleteBatch removes a PLANNED batch
// @Summary      Delete production batch
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/production-batches/{id} [delete]
func (h *ProductionBatchHandler) DeleteBatch(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.batchService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Production batch deleted successfully"))
}

// GetSummary returns counts by status, today's batches and batches awaiting yield
// @Summary      Production batch summary
// @Tags         production-batches
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=model.BatchSummaryResponse}
// @Router       /api/production-batches/summary [get]
func (h *ProductionBatchHandler) GetSummary(c *gin.Context) {
	summary, err := h.batchService.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}
