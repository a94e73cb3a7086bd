package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/catalog"
	"pos-service/internal/receipt"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/submission"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	session  *service.Session
	renderer *receipt.TextRenderer
	checks   map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(session *service.Session, renderer *receipt.TextRenderer, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		session:  session,
		renderer: renderer,
		checks:   checks,
	}
}

// AddLineRequest adds a product to the cart
type AddLineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// FinalizeRequest submits the cart
type FinalizeRequest struct {
	Seller string `json:"seller"`
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
		v1.GET("/catalog", h.getCatalog)
		v1.GET("/catalog/sellable", h.getSellable)
		v1.POST("/catalog/reload", h.reloadCatalog)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/lines", h.addLine)
		v1.DELETE("/cart/lines/:index", h.removeLine)
		v1.DELETE("/cart", h.clearCart)

		v1.POST("/orders", h.finalize)
		v1.GET("/orders", h.listHistory)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/receipt", h.getReceipt)

		v1.GET("/journal", h.listJournal)
		v1.GET("/sequence", h.getSequence)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports the state of every configured dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

func (h *Handler) getCatalog(c *gin.Context) {
	filter, err := catalog.ParseStockFilter(c.Query("stock"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := h.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"products":  snap.Filter(c.Query("q"), filter),
		"source":    snap.Source,
		"fallback":  snap.IsFallback(),
		"loaded_at": snap.LoadedAt,
	})
}

func (h *Handler) getSellable(c *gin.Context) {
	snap := h.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"products": snap.Sellable(),
		"source":   snap.Source,
	})
}

func (h *Handler) reloadCatalog(c *gin.Context) {
	snap := h.session.Reload(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"products": len(snap.Products),
		"source":   snap.Source,
		"fallback": snap.IsFallback(),
	})
}

func (h *Handler) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Cart())
}

func (h *Handler) addLine(c *gin.Context) {
	var req AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.session.AddLine(req.ProductID, req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Cart())
}

func (h *Handler) removeLine(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid line index"})
		return
	}

	h.session.RemoveLine(index)
	c.JSON(http.StatusOK, h.session.Cart())
}

func (h *Handler) clearCart(c *gin.Context) {
	h.session.ClearCart()
	c.JSON(http.StatusOK, h.session.Cart())
}

// finalize submits the cart as an order
func (h *Handler) finalize(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ack, err := h.session.Finalize(c.Request.Context(), req.Seller)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":         ack.Order,
		"strategy":      ack.Strategy,
		"message":       ack.Message,
		"attempts":      ack.Attempts,
		"next_order_id": h.session.CurrentToken(),
	})
}

func (h *Handler) listHistory(c *gin.Context) {
	history, source := h.session.History(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"orders": history,
		"source": source,
	})
}

// listJournal lists locally journaled orders, newest first
func (h *Handler) listJournal(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	orders, err := h.session.RecentOrders(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.session.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getReceipt(c *gin.Context) {
	order, err := h.session.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	text, err := h.renderer.RenderString(*order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "inline; filename="+receipt.FileName(order.ID))
	c.String(http.StatusOK, text)
}

func (h *Handler) getSequence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"next_order_id": h.session.CurrentToken()})
}

// writeError maps domain errors to HTTP responses
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		status = http.StatusBadRequest
	case errors.Is(err, cart.ErrUnknownProduct):
		status = http.StatusNotFound
	case errors.Is(err, cart.ErrInsufficientStock):
		status = http.StatusConflict
	case errors.Is(err, service.ErrSubmissionInFlight), errors.Is(err, service.ErrDuplicateOrder):
		status = http.StatusConflict
	case errors.Is(err, submission.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, submission.ErrRemoteRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, submission.ErrUnconfirmed):
		status = http.StatusAccepted
	case errors.Is(err, submission.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, submission.ErrTransportExhausted):
		status = http.StatusBadGateway
	case errors.Is(err, store.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrJournalDisabled):
		status = http.StatusNotImplemented
	}

	body := gin.H{"error": err.Error()}
	var se *submission.Error
	if errors.As(err, &se) {
		body["kind"] = submission.KindOf(err)
		body["attempts"] = se.Attempts
	}
	c.JSON(status, body)
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
