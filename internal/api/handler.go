package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"batch-service/internal/models"
	"batch-service/internal/service"
	"batch-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultTenant = "default"

// OrderProcessor is the allocation engine surface the handlers need.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, tenant string, req *service.OrderRequest) (*service.OrderResult, error)
}

// BatchAdmin is the administrative batch surface.
type BatchAdmin interface {
	CreateBatch(ctx context.Context, productID int64, batchNumber string, expiry *time.Time, quantity int) (*models.Batch, error)
	UpdateBatch(ctx context.Context, batchID int64, expiry *time.Time, quantity *int) (*models.Batch, error)
	DeleteBatch(ctx context.Context, batchID int64) error
	GetBatch(ctx context.Context, batchID int64) (*models.Batch, error)
	ListBatches(ctx context.Context, productID int64) ([]models.Batch, error)
}

// TraceFinder is the traceability lookup surface.
type TraceFinder interface {
	FindOrdersByBatchNumber(ctx context.Context, batchNumber string) ([]models.TraceEntry, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders  OrderProcessor
	batches BatchAdmin
	trace   TraceFinder
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderProcessor, batches BatchAdmin, trace TraceFinder) *Handler {
	return &Handler{
		orders:  orders,
		batches: batches,
		trace:   trace,
		logger:  util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/platform/orders", h.platformWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.submitOrder)
		v1.GET("/traceability/:batchNumber", h.traceBatch)
		v1.POST("/batches", h.createBatch)
		v1.GET("/batches/:id", h.getBatch)
		v1.PATCH("/batches/:id", h.updateBatch)
		v1.DELETE("/batches/:id", h.deleteBatch)
		v1.GET("/products/:id/batches", h.listBatches)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// tenantFrom reads the tenant the upstream authentication layer attached.
// The core trusts it; credential verification is not this service's job.
func tenantFrom(c *gin.Context) string {
	if tenant := c.GetHeader("X-Tenant-ID"); tenant != "" {
		return tenant
	}
	return defaultTenant
}

// submitOrder handles the direct, authenticated order submission.
func (h *Handler) submitOrder(c *gin.Context) {
	var req service.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.orders.ProcessOrder(c.Request.Context(), tenantFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyProcessed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// platformWebhook receives platform order deliveries. Signature verification
// happened upstream. The delivery is always acknowledged with 200: duplicate
// deliveries are safe, but a delivery the platform keeps retrying after a
// processing failure is not, so failures are surfaced through logs and
// metrics instead of status codes.
func (h *Handler) platformWebhook(c *gin.Context) {
	ack := func(received bool) {
		c.JSON(http.StatusOK, gin.H{"received": received})
	}

	var platformOrder service.PlatformOrder
	if err := c.ShouldBindJSON(&platformOrder); err != nil {
		h.logger.Error("Malformed platform webhook payload", zap.Error(err))
		util.WebhookDeliveriesTotal.WithLabelValues("malformed").Inc()
		ack(false)
		return
	}

	req, err := service.MapPlatformOrder(&platformOrder)
	if err != nil {
		h.logger.Error("Failed to map platform webhook order",
			zap.String("platform_order_id", platformOrder.ID),
			zap.Error(err))
		util.WebhookDeliveriesTotal.WithLabelValues("invalid").Inc()
		ack(false)
		return
	}

	if _, err := h.orders.ProcessOrder(c.Request.Context(), tenantFrom(c), req); err != nil {
		h.logger.Error("Failed to process webhook order",
			zap.String("external_order_id", req.ExternalOrderID),
			zap.Error(err))
		util.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		ack(false)
		return
	}

	util.WebhookDeliveriesTotal.WithLabelValues("processed").Inc()
	ack(true)
}

// traceBatch handles the traceability lookup.
func (h *Handler) traceBatch(c *gin.Context) {
	batchNumber := c.Param("batchNumber")

	entries, err := h.trace.FindOrdersByBatchNumber(c.Request.Context(), batchNumber)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_number": batchNumber,
		"results":      entries,
	})
}

type createBatchRequest struct {
	ProductID   int64      `json:"product_id" binding:"required"`
	BatchNumber string     `json:"batch_number" binding:"required"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	Quantity    int        `json:"quantity"`
}

func (h *Handler) createBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	batch, err := h.batches.CreateBatch(c.Request.Context(), req.ProductID, req.BatchNumber, req.ExpiryDate, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

type updateBatchRequest struct {
	ExpiryDate *time.Time `json:"expiry_date"`
	Quantity   *int       `json:"quantity"`
}

func (h *Handler) updateBatch(c *gin.Context) {
	batchID, ok := h.batchIDParam(c)
	if !ok {
		return
	}

	var req updateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	batch, err := h.batches.UpdateBatch(c.Request.Context(), batchID, req.ExpiryDate, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) deleteBatch(c *gin.Context) {
	batchID, ok := h.batchIDParam(c)
	if !ok {
		return
	}

	if err := h.batches.DeleteBatch(c.Request.Context(), batchID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getBatch(c *gin.Context) {
	batchID, ok := h.batchIDParam(c)
	if !ok {
		return
	}

	batch, err := h.batches.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) listBatches(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	batches, err := h.batches.ListBatches(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (h *Handler) batchIDParam(c *gin.Context) (int64, bool) {
	batchID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch ID"})
		return 0, false
	}
	return batchID, true
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDuplicateBatchNumber),
		errors.Is(err, models.ErrBatchHasConsumptions),
		errors.Is(err, models.ErrBatchConsumed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnknownProduct),
		errors.Is(err, models.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
