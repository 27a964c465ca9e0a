package api

import (
	"net/http"
	"strconv"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/service"
	"rental-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	rentalService *service.RentalService
	sweeper       *service.Sweeper
}

// NewHandler creates a new HTTP handler
func NewHandler(rentalService *service.RentalService, sweeper *service.Sweeper) *Handler {
	return &Handler{
		rentalService: rentalService,
		sweeper:       sweeper,
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

	v1 := router.Group("/api/v1")
	{
		v1.POST("/rentals", h.createRental)
		v1.GET("/rentals/:id", h.getRental)
		v1.PATCH("/rentals/:id", h.updateRental)
		v1.POST("/rentals/:id/transition", h.transitionRental)
		v1.POST("/rentals/:id/return", h.recordReturn)
		v1.POST("/rentals/:id/cancel", h.cancelRental)
		v1.GET("/rentals/:id/cost", h.getCostBreakdown)
		v1.GET("/customers/:id/rentals", h.listCustomerRentals)
		v1.POST("/sweep", h.runSweep)
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

// createRental handles order booking
func (h *Handler) createRental(c *gin.Context) {
	var req service.CreateRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rental, err := h.rentalService.CreateRental(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rental)
}

// getRental handles get order by ID, including payment history
func (h *Handler) getRental(c *gin.Context) {
	rentalID, ok := rentalIDParam(c)
	if !ok {
		return
	}

	rental, payments, err := h.rentalService.GetRental(c.Request.Context(), rentalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rental":             rental,
		"payments":           payments,
		"outstanding_amount": rental.OutstandingAmount(),
	})
}

// updateRental handles order edits
func (h *Handler) updateRental(c *gin.Context) {
	rentalID, ok := rentalIDParam(c)
	if !ok {
		return
	}

	var req service.UpdateRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rental, err := h.rentalService.UpdateRental(c.Request.Context(), rentalID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rental)
}

type transitionRequest struct {
	Status  string                    `json:"status" binding:"required"`
	Context service.TransitionContext `json:"context"`
}

// transitionRental handles explicit lifecycle transitions
func (h *Handler) transitionRental(c *gin.Context) {
	rentalID, ok := rentalIDParam(c)
	if !ok {
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rental, err := h.rentalService.Transition(c.Request.Context(), rentalID, req.Status, req.Context)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rental)
}

type returnRequest struct {
	ActualReturnDate string `json:"actual_return_date" binding:"required"`
}

// recordReturn handles the manual vehicle return
func (h *Handler) recordReturn(c *gin.Context) {
	rentalID, ok := rentalIDParam(c)
	if !ok {
		return
	}

	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	outcome, err := h.rentalService.RecordReturn(c.Request.Context(), rentalID, req.ActualReturnDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// cancelRental handles order cancellation
func (h *Handler) cancelRental(c *gin.Context) {
	rentalID, ok := rentalIDParam(c)
	if !ok {
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rental, err := h.rentalService.Cancel(c.Request.Context(), rentalID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rental)
}

// getCostBreakdown returns the itemized bill for an order
func (h *Handler) getCostBreakdown(c *gin.Context) {
	rentalID, ok := rentalIDParam(c)
	if !ok {
		return
	}

	breakdown, err := h.rentalService.GetCostBreakdown(c.Request.Context(), rentalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

// listCustomerRentals returns one customer's rental history
func (h *Handler) listCustomerRentals(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer ID"})
		return
	}

	rentals, err := h.rentalService.ListCustomerRentals(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rentals": rentals})
}

// runSweep triggers the batch lifecycle sweep
func (h *Handler) runSweep(c *gin.Context) {
	summary, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func rentalIDParam(c *gin.Context) (int64, bool) {
	rentalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rental ID"})
		return 0, false
	}
	return rentalID, true
}

// respondError maps the error taxonomy to HTTP statuses: validation 400,
// illegal transition 409, not found 404, everything else 500
func respondError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case models.IsIllegalTransition(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
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
