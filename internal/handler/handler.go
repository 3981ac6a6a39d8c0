// Package handler exposes the payment lifecycle over HTTP. Each route loads
// the record, runs one gateway operation under the store lock, and returns
// the updated record together with the operation result.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orcaya/payplace-go/internal/gateway"
	"github.com/orcaya/payplace-go/internal/health"
	"github.com/orcaya/payplace-go/internal/model"
	"github.com/orcaya/payplace-go/internal/payplace"
)

// Handler holds HTTP handler dependencies.
type Handler struct {
	gw      *gateway.Gateway
	store   *RecordStore
	monitor *health.Monitor
	logger  *slog.Logger
}

// New creates a new Handler.
func New(gw *gateway.Gateway, store *RecordStore, monitor *health.Monitor) *Handler {
	return &Handler{
		gw:      gw,
		store:   store,
		monitor: monitor,
		logger:  slog.Default(),
	}
}

// RegisterRoutes registers all API routes on the given engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/payments", h.CreatePayment)
	r.GET("/payments/:id", h.GetPayment)
	r.GET("/payments/:id/status", h.GetPaymentStatus)
	r.POST("/payments/:id/authorize", h.AuthorizePayment)
	r.POST("/payments/:id/mandate", h.AcceptMandate)
	r.POST("/payments/:id/capture", h.CapturePayment)
	r.POST("/payments/:id/cancel", h.CancelPayment)
	r.POST("/payments/:id/refund", h.RefundPayment)
	r.POST("/payments/:id/notify", h.Notify)
	r.GET("/health/provider", h.GetProviderHealth)
}

// createPaymentRequest is the request body for POST /payments.
type createPaymentRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency"`
	Method   string `json:"payment_method" binding:"required,oneof=creditcard elv"`

	SuccessURL      string `json:"success_url" binding:"omitempty,url"`
	ErrorURL        string `json:"error_url" binding:"omitempty,url"`
	BackURL         string `json:"back_url" binding:"omitempty,url"`
	NotificationURL string `json:"notification_url" binding:"omitempty,url"`

	CustomerEmail string `json:"customer_email" binding:"omitempty,email"`
	FirstName     string `json:"firstname"`
	LastName      string `json:"lastname"`
	Street        string `json:"street"`
	StreetNumber  string `json:"street_number"`
	City          string `json:"city"`
	Zip           string `json:"zip"`
	State         string `json:"state"`
	Country       string `json:"country"`
}

// paymentResponse pairs the record with its canonical status and, when an
// operation ran, the operation result.
type paymentResponse struct {
	Payment model.PaymentRecord   `json:"payment"`
	Status  model.CanonicalStatus `json:"canonical_status"`
	Result  *gateway.Result       `json:"result,omitempty"`
}

func respond(c *gin.Context, status int, rec model.PaymentRecord, result *gateway.Result) {
	c.JSON(status, paymentResponse{
		Payment: rec,
		Status:  model.Project(&rec),
		Result:  result,
	})
}

// CreatePayment handles POST /payments.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec := &model.PaymentRecord{
		OrderID:  req.OrderID,
		Number:   uuid.NewString(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Method:   model.Method(req.Method),
		Status:   model.StatusNew,

		SuccessURL:      req.SuccessURL,
		ErrorURL:        req.ErrorURL,
		BackURL:         req.BackURL,
		NotificationURL: req.NotificationURL,

		CustomerEmail: req.CustomerEmail,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Street:        req.Street,
		StreetNumber:  req.StreetNumber,
		City:          req.City,
		Zip:           req.Zip,
		State:         req.State,
		Country:       req.Country,
	}
	h.store.Put(rec)

	h.logger.Info("payment_created",
		"number", rec.Number,
		"orderid", rec.OrderID,
		"payment_method", rec.Method,
	)
	respond(c, http.StatusCreated, *rec, nil)
}

// GetPayment handles GET /payments/:id.
func (h *Handler) GetPayment(c *gin.Context) {
	rec, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	respond(c, http.StatusOK, rec, nil)
}

// GetPaymentStatus handles GET /payments/:id/status.
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	rec, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"number": rec.Number,
		"status": model.Project(&rec),
	})
}

// authorizeRequest carries the provider callback parameters when the
// operation resumes after a redirect. All fields are optional; a first
// invocation has none of them.
type authorizeRequest struct {
	Token    string `form:"token" json:"token"`
	Canceled bool   `form:"canceled" json:"canceled"`
}

// AuthorizePayment handles POST /payments/:id/authorize. Callback parameters
// may arrive as query parameters (provider redirect) or as a JSON body.
func (h *Handler) AuthorizePayment(c *gin.Context) {
	var req authorizeRequest
	_ = c.ShouldBindQuery(&req)
	if c.ContentType() == "application/json" {
		_ = c.ShouldBindJSON(&req)
	}

	h.runOperation(c, func(rec *model.PaymentRecord) (gateway.Result, error) {
		return h.gw.Authorize(c.Request.Context(), rec, gateway.Callback{
			Token:    req.Token,
			Canceled: req.Canceled,
		})
	})
}

// AcceptMandate handles POST /payments/:id/mandate. It records the shopper's
// SEPA mandate acceptance and re-runs authorization, which now proceeds to
// the token redirect.
func (h *Handler) AcceptMandate(c *gin.Context) {
	h.runOperation(c, func(rec *model.PaymentRecord) (gateway.Result, error) {
		rec.MandateAccepted = true
		return h.gw.Authorize(c.Request.Context(), rec, gateway.Callback{})
	})
}

// amountRequest is the optional request body for capture and refund.
type amountRequest struct {
	Amount int64 `json:"amount" binding:"omitempty,gt=0"`
}

// CapturePayment handles POST /payments/:id/capture.
func (h *Handler) CapturePayment(c *gin.Context) {
	var req amountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.runOperation(c, func(rec *model.PaymentRecord) (gateway.Result, error) {
		if req.Amount > 0 {
			rec.CaptureAmount = req.Amount
		}
		return h.gw.Capture(c.Request.Context(), rec)
	})
}

// CancelPayment handles POST /payments/:id/cancel.
func (h *Handler) CancelPayment(c *gin.Context) {
	h.runOperation(c, func(rec *model.PaymentRecord) (gateway.Result, error) {
		return h.gw.Cancel(c.Request.Context(), rec)
	})
}

// RefundPayment handles POST /payments/:id/refund.
func (h *Handler) RefundPayment(c *gin.Context) {
	var req amountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.runOperation(c, func(rec *model.PaymentRecord) (gateway.Result, error) {
		if req.Amount > 0 {
			rec.RefundAmount = req.Amount
		}
		return h.gw.Refund(c.Request.Context(), rec)
	})
}

// Notify handles POST /payments/:id/notify, the provider's asynchronous
// status callback. The body is form-encoded; unknown records get 404 so the
// provider retries later.
func (h *Handler) Notify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form body"})
		return
	}
	params := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	rec, ok, _ := h.store.Update(c.Param("id"), func(rec *model.PaymentRecord) error {
		h.gw.Notify(rec, params)
		return nil
	})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	respond(c, http.StatusOK, rec, nil)
}

// GetProviderHealth handles GET /health/provider.
func (h *Handler) GetProviderHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.monitor.GetAllHealth()})
}

// runOperation loads the record, runs op on it under the store lock, and
// writes the standard response, mapping gateway errors to HTTP statuses.
func (h *Handler) runOperation(c *gin.Context, op func(*model.PaymentRecord) (gateway.Result, error)) {
	var result gateway.Result
	rec, ok, err := h.store.Update(c.Param("id"), func(rec *model.PaymentRecord) error {
		var opErr error
		result, opErr = op(rec)
		return opErr
	})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	if err != nil {
		h.writeOperationError(c, err)
		return
	}
	respond(c, http.StatusOK, rec, &result)
}

func (h *Handler) writeOperationError(c *gin.Context, err error) {
	var transport *payplace.TransportError
	switch {
	case errors.Is(err, gateway.ErrUnsupportedMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrTransactionRequired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &transport):
		h.logger.Error("provider_unreachable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unreachable"})
	default:
		h.logger.Error("operation_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
