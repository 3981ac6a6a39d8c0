// Package gateway drives a payment record through the Payplace lifecycle:
// authorize → capture with side exits to cancel and refund, plus the
// asynchronous notification merge. Operations mutate the caller-owned record
// and report redirects as explicit result variants.
package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/orcaya/payplace-go/internal/config"
	"github.com/orcaya/payplace-go/internal/health"
	"github.com/orcaya/payplace-go/internal/model"
	"github.com/orcaya/payplace-go/internal/payplace"
)

// ProviderAPI is the slice of the Payplace client the gateway needs.
// *payplace.Client implements it.
type ProviderAPI interface {
	Open(ctx context.Context, fields payplace.Fields) (payplace.Fields, error)
	Authorize(ctx context.Context, fields payplace.Fields) (payplace.Fields, error)
	Capture(ctx context.Context, fields payplace.Fields) (payplace.Fields, error)
	Reversal(ctx context.Context, fields payplace.Fields) (payplace.Fields, error)
	Refund(ctx context.Context, fields payplace.Fields) (payplace.Fields, error)
	FormServiceURL() string
}

// Callback carries the query parameters of the browser navigation that
// resumed a suspended operation.
type Callback struct {
	Canceled bool
	Token    string
}

// Gateway is the per-operation state machine. It is synchronous and holds no
// state of its own; everything lives on the record between invocations.
type Gateway struct {
	api     ProviderAPI
	cfg     config.Config
	monitor *health.Monitor
	flow    tokenFlow
	logger  *slog.Logger
}

// New creates a gateway using the token flow selected by the configuration.
func New(cfg config.Config, api ProviderAPI, monitor *health.Monitor) *Gateway {
	g := &Gateway{
		api:     api,
		cfg:     cfg,
		monitor: monitor,
		logger:  slog.Default(),
	}
	if cfg.TokenFlow == config.FlowLegacy {
		g.flow = &legacyFlow{}
	} else {
		g.flow = &mandateFlow{}
	}
	return g
}

// SetLogger replaces the gateway's logger.
func (g *Gateway) SetLogger(logger *slog.Logger) {
	g.logger = logger
}

// Authorize runs the token-acquisition and preauthorization sequence. It may
// suspend with a redirect (hosted form) or mandate result; the caller resumes
// by invoking it again with the provider's callback parameters.
func (g *Gateway) Authorize(ctx context.Context, rec *model.PaymentRecord, cb Callback) (Result, error) {
	if !rec.Method.Valid() {
		return Result{}, ErrUnsupportedMethod
	}

	if cb.Canceled {
		rec.Status = model.StatusCanceled
		g.logger.Info("authorize_canceled_by_shopper", "orderid", rec.OrderID)
		return done(), nil
	}

	if cb.Token != "" {
		rec.Token = cb.Token
	}

	// A token means the hosted form already ran; authorize directly.
	if rec.Token != "" {
		if err := g.authorizeWithToken(ctx, rec); err != nil {
			return Result{}, err
		}
		return done(), nil
	}

	ok, err := g.flow.ensureSession(ctx, g, rec)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// Session initialization was declined; the record holds the failure.
		return done(), nil
	}

	return g.flow.tokenResult(g, rec)
}

// Capture settles a previously authorized payment, optionally for a partial
// amount via the record's CaptureAmount.
func (g *Gateway) Capture(ctx context.Context, rec *model.PaymentRecord) (Result, error) {
	if !rec.Method.Valid() {
		return Result{}, ErrUnsupportedMethod
	}

	// The legacy flow captures in one shot: a fresh token is authorized first,
	// then captured immediately.
	if g.cfg.TokenFlow == config.FlowLegacy && rec.Token != "" && !rec.HasTransaction() {
		if err := g.authorizeWithToken(ctx, rec); err != nil {
			return Result{}, err
		}
		if !rec.HasTransaction() {
			return done(), nil
		}
	}

	if !rec.HasTransaction() || rec.Posherr != model.PosherrSuccess {
		return Result{}, ErrTransactionRequired
	}

	fields := payplace.Fields{
		"merchant_id":    g.cfg.MerchantID,
		"orderid":        rec.Number,
		"trefnum":        rec.Trefnum,
		"payment_method": string(rec.Method),
		"currency":       rec.EffectiveCurrency(),
	}
	if rec.PPAN != "" {
		fields["ppan"] = rec.PPAN
	}
	if rec.CaptureAmount > 0 {
		fields["amount"] = strconv.FormatInt(rec.CaptureAmount, 10)
	}

	resp, err := g.api.Capture(ctx, fields)
	if err != nil {
		g.monitor.RecordOutcome(payplace.CommandCapture, health.OutcomeTransportError)
		return Result{}, err
	}

	// Capture is the one operation where rc is checked in addition to posherr.
	if !payplace.IsSuccess(resp) {
		g.monitor.RecordOutcome(payplace.CommandCapture, health.OutcomeDeclined)
		rec.Status = model.StatusFailed
		rec.Posherr = resp["posherr"]
		rec.RC = resp["rc"]
		rec.Rmsg = payplace.ErrorMessage(resp)
		g.logger.Error("capture_declined",
			"orderid", rec.OrderID,
			"posherr", rec.Posherr,
			"rmsg", rec.Rmsg,
		)
		return done(), nil
	}

	g.monitor.RecordOutcome(payplace.CommandCapture, health.OutcomeOK)
	now := time.Now()
	rec.Status = model.StatusCaptured
	rec.CaptureStatus = model.StatusCaptured
	rec.Captured = true
	rec.CapturedAt = &now
	rec.Posherr = resp["posherr"]
	rec.Rmsg = resp["rmsg"]
	rec.RC = resp["rc"]
	if rec.RC == "" {
		rec.RC = model.RCSuccess
	}
	g.logger.Info("capture_succeeded", "orderid", rec.OrderID, "trefnum", rec.Trefnum)
	return done(), nil
}

// Cancel reverses an authorization. The provider is only marked cancelled on
// a successful reversal.
func (g *Gateway) Cancel(ctx context.Context, rec *model.PaymentRecord) (Result, error) {
	if !rec.HasTransaction() {
		return Result{}, ErrTransactionRequired
	}

	fields := payplace.Fields{
		"merchant_id":    g.cfg.MerchantID,
		"orderid":        rec.OrderID,
		"trefnum":        rec.Trefnum,
		"payment_method": string(rec.Method),
	}

	resp, err := g.api.Reversal(ctx, fields)
	if err != nil {
		g.monitor.RecordOutcome(payplace.CommandReversal, health.OutcomeTransportError)
		return Result{}, err
	}

	rec.Apply(resp)

	if resp["posherr"] == model.PosherrSuccess {
		g.monitor.RecordOutcome(payplace.CommandReversal, health.OutcomeOK)
		rec.Status = model.StatusCanceled
		rec.Cancelled = true
		g.logger.Info("cancel_succeeded", "orderid", rec.OrderID, "trefnum", rec.Trefnum)
	} else {
		g.monitor.RecordOutcome(payplace.CommandReversal, health.OutcomeDeclined)
		g.logger.Error("cancel_declined",
			"orderid", rec.OrderID,
			"posherr", resp["posherr"],
			"rmsg", payplace.ErrorMessage(resp),
		)
	}
	return done(), nil
}

// Refund returns money for a captured payment. The amount defaults to the
// full original amount unless the record carries a RefundAmount.
func (g *Gateway) Refund(ctx context.Context, rec *model.PaymentRecord) (Result, error) {
	if !rec.HasTransaction() {
		return Result{}, ErrTransactionRequired
	}

	amount := rec.Amount
	if rec.RefundAmount > 0 {
		amount = rec.RefundAmount
	}

	fields := payplace.Fields{
		"merchant_id":    g.cfg.MerchantID,
		"orderid":        rec.OrderID,
		"trefnum":        rec.Trefnum,
		"amount":         strconv.FormatInt(amount, 10),
		"payment_method": string(rec.Method),
		"currency":       rec.EffectiveCurrency(),
	}
	if rec.PPAN != "" {
		fields["ppan"] = rec.PPAN
	}

	resp, err := g.api.Refund(ctx, fields)
	if err != nil {
		g.monitor.RecordOutcome(payplace.CommandRefund, health.OutcomeTransportError)
		return Result{}, err
	}

	rec.Apply(resp)

	if resp["posherr"] == model.PosherrSuccess {
		g.monitor.RecordOutcome(payplace.CommandRefund, health.OutcomeOK)
		rec.Refunded = true
		rec.Status = model.StatusRefunded
		g.logger.Info("refund_succeeded",
			"orderid", rec.OrderID,
			"trefnum", rec.Trefnum,
			"amount", amount,
		)
	} else {
		g.monitor.RecordOutcome(payplace.CommandRefund, health.OutcomeDeclined)
		g.logger.Error("refund_declined",
			"orderid", rec.OrderID,
			"posherr", resp["posherr"],
			"rmsg", payplace.ErrorMessage(resp),
		)
	}
	return done(), nil
}

// Notify merges an asynchronous provider callback into the record. It is the
// only operation that runs outside the synchronous request cycle and it never
// contacts the provider.
func (g *Gateway) Notify(rec *model.PaymentRecord, params map[string]string) {
	rec.Apply(params)

	if rec.Posherr == model.PosherrSuccess && rec.HasTransaction() {
		rec.Captured = true
	}
	g.logger.Info("notification_merged",
		"orderid", rec.OrderID,
		"posherr", rec.Posherr,
		"captured", rec.Captured,
	)
}

// authorizeWithToken performs the preauthorization call and maps the result
// onto the record.
func (g *Gateway) authorizeWithToken(ctx context.Context, rec *model.PaymentRecord) error {
	fields := payplace.Fields{
		"merchant_id":    g.cfg.MerchantID,
		"orderid":        rec.OrderID,
		"amount":         strconv.FormatInt(rec.Amount, 10),
		"currency":       rec.EffectiveCurrency(),
		"payment_method": string(rec.Method),
	}
	if rec.Token != "" {
		fields["token"] = rec.Token
	}
	if rec.Method == model.MethodDirectDebit && rec.PPAN != "" {
		fields["ppan"] = rec.PPAN
	}

	resp, err := g.api.Authorize(ctx, fields)
	if err != nil {
		g.monitor.RecordOutcome(payplace.CommandPreauthorization, health.OutcomeTransportError)
		return err
	}

	previous := rec.Status

	if resp["posherr"] != model.PosherrSuccess {
		g.monitor.RecordOutcome(payplace.CommandPreauthorization, health.OutcomeDeclined)
		rec.Status = model.StatusFailed
		rec.Posherr = resp["posherr"]
		rec.Rmsg = payplace.ErrorMessage(resp)
		g.logger.Error("authorize_declined",
			"orderid", rec.OrderID,
			"posherr", rec.Posherr,
			"rmsg", rec.Rmsg,
		)
		return nil
	}

	g.monitor.RecordOutcome(payplace.CommandPreauthorization, health.OutcomeOK)

	if resp["trefnum"] != "" {
		now := time.Now()
		rec.Status = model.StatusAuthorized
		rec.Trefnum = resp["trefnum"]
		rec.AuthorizedAt = &now
		g.logger.Info("authorize_succeeded",
			"orderid", rec.OrderID,
			"trefnum", rec.Trefnum,
		)
	} else {
		// Provider reported success but issued no reference yet.
		rec.Status = model.StatusPending
	}

	rec.Apply(resp)

	g.logger.Info("authorize_status_changed",
		"orderid", rec.OrderID,
		"from", previous,
		"to", rec.Status,
	)
	return nil
}

// initializeSession opens the hosted-form session (command=open). It returns
// false when the provider declined, with the failure written to the record.
func (g *Gateway) initializeSession(ctx context.Context, rec *model.PaymentRecord) (bool, error) {
	fields := payplace.Fields{
		"merchant_id":     g.cfg.MerchantID,
		"orderid":         rec.OrderID,
		"amount":          strconv.FormatInt(rec.Amount, 10),
		"currency":        rec.EffectiveCurrency(),
		"payment_method":  string(rec.Method),
		"successurl":      rec.SuccessURL,
		"errorurl":        rec.ErrorURL,
		"backurl":         rec.BackURL,
		"notificationurl": rec.NotificationURL,
	}
	if rec.CustomerEmail != "" {
		fields["customer"] = rec.CustomerEmail
	}
	if rec.Method == model.MethodCreditCard && g.cfg.Use3DSecure {
		fields["payment_options"] = payplace.Options3DSecure20 + ";" + payplace.OptionsInitIframe
	}

	resp, err := g.api.Open(ctx, fields)
	if err != nil {
		g.monitor.RecordOutcome(payplace.CommandOpen, health.OutcomeTransportError)
		return false, err
	}

	if resp["posherr"] != "" && resp["posherr"] != model.PosherrSuccess {
		g.monitor.RecordOutcome(payplace.CommandOpen, health.OutcomeDeclined)
		rec.Status = model.StatusFailed
		rec.Posherr = resp["posherr"]
		rec.Rmsg = payplace.ErrorMessage(resp)
		g.logger.Error("session_init_declined",
			"orderid", rec.OrderID,
			"posherr", rec.Posherr,
			"rmsg", rec.Rmsg,
		)
		return false, nil
	}

	g.monitor.RecordOutcome(payplace.CommandOpen, health.OutcomeOK)
	rec.ClientSession = resp["clientSession"]
	rec.ClientConfiguration = resp["clientConfiguration"]
	g.logger.Info("session_initialized", "orderid", rec.OrderID)
	return true, nil
}
