package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaya/payplace-go/internal/config"
	"github.com/orcaya/payplace-go/internal/gateway"
	"github.com/orcaya/payplace-go/internal/health"
	"github.com/orcaya/payplace-go/internal/model"
	"github.com/orcaya/payplace-go/internal/payplace"
)

// scriptedAPI answers every provider operation with a fixed response.
type scriptedAPI struct {
	responses map[string]payplace.Fields
	err       error
}

func (s *scriptedAPI) respond(op string) (payplace.Fields, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.responses[op], nil
}

func (s *scriptedAPI) Open(context.Context, payplace.Fields) (payplace.Fields, error) {
	return s.respond("open")
}

func (s *scriptedAPI) Authorize(context.Context, payplace.Fields) (payplace.Fields, error) {
	return s.respond("authorize")
}

func (s *scriptedAPI) Capture(context.Context, payplace.Fields) (payplace.Fields, error) {
	return s.respond("capture")
}

func (s *scriptedAPI) Reversal(context.Context, payplace.Fields) (payplace.Fields, error) {
	return s.respond("reversal")
}

func (s *scriptedAPI) Refund(context.Context, payplace.Fields) (payplace.Fields, error) {
	return s.respond("refund")
}

func (s *scriptedAPI) FormServiceURL() string {
	return "https://testsystem.payplace.de/web-api/SSLPayment.po"
}

func newTestRouter(api *scriptedAPI) (*gin.Engine, *RecordStore) {
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		MerchantID:    "merchant-1",
		Password:      "pass-1",
		SSLMerchantID: "ssl-merchant-1",
		SSLPassword:   "ssl-pass-1",
		NotifyURL:     "https://shop.example/notify",
		Sandbox:       true,
		Use3DSecure:   true,
		TokenFlow:     config.FlowMandate,
		ListenAddr:    ":0",
	}

	monitor := health.NewMonitor()
	store := NewRecordStore()
	h := New(gateway.New(cfg, api, monitor), store, monitor)

	router := gin.New()
	h.RegisterRoutes(router)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) paymentResponse {
	t.Helper()
	var resp paymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func createPayment(t *testing.T, router *gin.Engine, method string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/payments", gin.H{
		"order_id":       "order-1",
		"amount":         2500,
		"currency":       "EUR",
		"payment_method": method,
		"firstname":      "Anna",
		"lastname":       "Muster",
		"street":         "Hauptstraße",
		"street_number":  "7",
		"city":           "Stuttgart",
		"zip":            "70173",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeResponse(t, w).Payment.Number
}

func TestCreatePayment(t *testing.T) {
	router, store := newTestRouter(&scriptedAPI{})

	w := doJSON(t, router, http.MethodPost, "/payments", gin.H{
		"order_id":       "order-1",
		"amount":         2500,
		"payment_method": "creditcard",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeResponse(t, w)
	assert.NotEmpty(t, resp.Payment.Number)
	assert.Equal(t, "order-1", resp.Payment.OrderID)
	assert.Equal(t, model.CanonicalNew, resp.Status)
	assert.Equal(t, 1, store.Len())
}

func TestCreatePaymentValidation(t *testing.T) {
	router, _ := newTestRouter(&scriptedAPI{})

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "missing order id", body: gin.H{"amount": 100, "payment_method": "creditcard"}},
		{name: "zero amount", body: gin.H{"order_id": "o1", "amount": 0, "payment_method": "creditcard"}},
		{name: "unknown method", body: gin.H{"order_id": "o1", "amount": 100, "payment_method": "paypal"}},
		{name: "malformed url", body: gin.H{"order_id": "o1", "amount": 100, "payment_method": "elv", "success_url": "not-a-url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/payments", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetPayment(t *testing.T) {
	router, _ := newTestRouter(&scriptedAPI{})
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodGet, "/payments/"+number, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, number, decodeResponse(t, w).Payment.Number)

	w = doJSON(t, router, http.MethodGet, "/payments/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthorizeRedirectsToHostedForm(t *testing.T) {
	api := &scriptedAPI{responses: map[string]payplace.Fields{
		"open": {"posherr": "0", "clientSession": "sess-1"},
	}}
	router, _ := newTestRouter(api)
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Result)
	assert.Equal(t, gateway.ResultRedirect, resp.Result.Kind)
	assert.Contains(t, resp.Result.RedirectURL, "SSLPayment.po?")
	assert.Equal(t, model.CanonicalPending, resp.Status)
}

func TestAuthorizeWithTokenFromQuery(t *testing.T) {
	api := &scriptedAPI{responses: map[string]payplace.Fields{
		"authorize": {"posherr": "0", "trefnum": "T-1"},
	}}
	router, _ := newTestRouter(api)
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize?token=tok-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.Equal(t, gateway.ResultDone, resp.Result.Kind)
	assert.Equal(t, model.CanonicalAuthorized, resp.Status)
	assert.Equal(t, "T-1", resp.Payment.Trefnum)
}

func TestMandateRouteUnblocksDirectDebit(t *testing.T) {
	api := &scriptedAPI{responses: map[string]payplace.Fields{
		"open": {"posherr": "0", "clientSession": "sess-1"},
	}}
	router, _ := newTestRouter(api)
	number := createPayment(t, router, "elv")

	// First authorization attempt stops at the mandate.
	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Result)
	assert.Equal(t, gateway.ResultMandate, resp.Result.Kind)
	assert.Contains(t, resp.Result.MandateHTML, "Anna Muster")

	// Accepting the mandate resumes with the redirect.
	w = doJSON(t, router, http.MethodPost, "/payments/"+number+"/mandate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeResponse(t, w)
	assert.Equal(t, gateway.ResultRedirect, resp.Result.Kind)
	assert.True(t, resp.Payment.MandateAccepted)
}

func TestCaptureLifecycle(t *testing.T) {
	api := &scriptedAPI{responses: map[string]payplace.Fields{
		"authorize": {"posherr": "0", "trefnum": "T-1"},
		"capture":   {"posherr": "0", "rc": "000"},
	}}
	router, _ := newTestRouter(api)
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize?token=tok-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/payments/"+number+"/capture", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse(t, w)
	assert.Equal(t, model.CanonicalCaptured, resp.Status)
	assert.True(t, resp.Payment.Captured)
}

func TestCaptureBeforeAuthorizeConflicts(t *testing.T) {
	router, _ := newTestRouter(&scriptedAPI{})
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/capture", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelAndRefund(t *testing.T) {
	api := &scriptedAPI{responses: map[string]payplace.Fields{
		"authorize": {"posherr": "0", "trefnum": "T-1"},
		"reversal":  {"posherr": "0"},
		"refund":    {"posherr": "0"},
	}}
	router, _ := newTestRouter(api)

	number := createPayment(t, router, "creditcard")
	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize?token=tok-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/payments/"+number+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.CanonicalCanceled, decodeResponse(t, w).Status)

	// A fresh payment for the refund path.
	number = createPayment(t, router, "creditcard")
	w = doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize?token=tok-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/payments/"+number+"/refund", gin.H{"amount": 500})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, model.CanonicalRefunded, resp.Status)
	assert.True(t, resp.Payment.Refunded)
}

func TestNotifyMergesFormBody(t *testing.T) {
	router, _ := newTestRouter(&scriptedAPI{})
	number := createPayment(t, router, "creditcard")

	form := url.Values{}
	form.Set("posherr", "0")
	form.Set("trefnum", "T-9")
	form.Set("status", "captured")

	req := httptest.NewRequest(http.MethodPost, "/payments/"+number+"/notify",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, model.CanonicalCaptured, resp.Status)
	assert.True(t, resp.Payment.Captured)
	assert.Equal(t, "T-9", resp.Payment.Trefnum)
}

func TestNotifyUnknownPayment(t *testing.T) {
	router, _ := newTestRouter(&scriptedAPI{})

	req := httptest.NewRequest(http.MethodPost, "/payments/unknown/notify",
		strings.NewReader("posherr=0"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviderUnreachableMapsToBadGateway(t *testing.T) {
	api := &scriptedAPI{err: &payplace.TransportError{StatusCode: 500}}
	router, _ := newTestRouter(api)
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize?token=tok-1", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetPaymentStatus(t *testing.T) {
	router, _ := newTestRouter(&scriptedAPI{})
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodGet, "/payments/"+number+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, number, body["number"])
	assert.Equal(t, "new", body["status"])
}

func TestGetProviderHealth(t *testing.T) {
	api := &scriptedAPI{responses: map[string]payplace.Fields{
		"authorize": {"posherr": "0", "trefnum": "T-1"},
	}}
	router, _ := newTestRouter(api)
	number := createPayment(t, router, "creditcard")

	w := doJSON(t, router, http.MethodPost, "/payments/"+number+"/authorize?token=tok-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/health/provider", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Operations []health.OperationHealth `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Operations, 1)
	assert.Equal(t, "preauthorization", body.Operations[0].Operation)
	assert.Equal(t, health.StatusHealthy, body.Operations[0].Status)
}
