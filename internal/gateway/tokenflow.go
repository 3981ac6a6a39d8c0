package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/orcaya/payplace-go/internal/model"
	"github.com/orcaya/payplace-go/internal/signer"
)

// redirectDateLayout is the provider's Ymd_H:i:s timestamp format.
const redirectDateLayout = "20060102_15:04:05"

// tokenFlow is the strategy for acquiring a payment token via the hosted
// form. Two generations of the integration are kept side by side; their
// business rules differ and are selected by configuration, never merged.
type tokenFlow interface {
	ensureSession(ctx context.Context, g *Gateway, rec *model.PaymentRecord) (bool, error)
	tokenResult(g *Gateway, rec *model.PaymentRecord) (Result, error)
}

// mandateFlow is the current strategy: every method gets a provider session,
// redirect URLs are signed with the Payplace Express construction, and direct
// debit requires an accepted SEPA mandate before the token redirect.
type mandateFlow struct {
	signer signer.ExpressSigner
}

func (f *mandateFlow) ensureSession(ctx context.Context, g *Gateway, rec *model.PaymentRecord) (bool, error) {
	if rec.ClientSession != "" {
		return true, nil
	}
	return g.initializeSession(ctx, rec)
}

func (f *mandateFlow) tokenResult(g *Gateway, rec *model.PaymentRecord) (Result, error) {
	if rec.Method == model.MethodDirectDebit {
		if !rec.MandateAccepted {
			html, err := RenderMandate(rec)
			if err != nil {
				return Result{}, err
			}
			g.logger.Info("mandate_required", "orderid", rec.OrderID)
			return showMandate(html), nil
		}
		return issueRedirect(g, rec, debitRedirectURL(g, rec, f.signer)), nil
	}
	return issueRedirect(g, rec, cardRedirectURL(g, rec, f.signer)), nil
}

// legacyFlow is the first-generation strategy: only direct debit opens a
// provider session (cards reuse the internal reference as session id), there
// is no mandate gating, and URLs are signed with the standard query HMAC.
type legacyFlow struct {
	signer signer.QuerySigner
}

func (f *legacyFlow) ensureSession(ctx context.Context, g *Gateway, rec *model.PaymentRecord) (bool, error) {
	if rec.ClientSession != "" {
		return true, nil
	}
	if rec.Method == model.MethodDirectDebit {
		return g.initializeSession(ctx, rec)
	}
	rec.ClientSession = rec.Number
	return true, nil
}

func (f *legacyFlow) tokenResult(g *Gateway, rec *model.PaymentRecord) (Result, error) {
	if rec.Method == model.MethodDirectDebit {
		return issueRedirect(g, rec, debitRedirectURL(g, rec, f.signer)), nil
	}
	return issueRedirect(g, rec, cardRedirectURL(g, rec, f.signer)), nil
}

// issueRedirect marks the record pending and suspends the operation.
func issueRedirect(g *Gateway, rec *model.PaymentRecord, formURL string) Result {
	rec.Status = model.StatusPending
	rec.Posherr = model.PosherrSuccess
	g.logger.Info("token_redirect_issued",
		"orderid", rec.OrderID,
		"payment_method", rec.Method,
	)
	return redirectTo(formURL)
}

// cardRedirectURL builds the hosted card form URL. Note the provider's field
// quirk: basketid carries the merchant order id while orderid carries the
// internal reference.
func cardRedirectURL(g *Gateway, rec *model.PaymentRecord, s signer.Signer) string {
	params := map[string]string{
		"amount":          formatAmount(rec.Amount),
		"basketid":        rec.OrderID,
		"command":         "sslform",
		"currency":        rec.EffectiveCurrency(),
		"date":            time.Now().Format(redirectDateLayout),
		"orderid":         rec.Number,
		"paymentmethod":   "creditcard",
		"sessionid":       rec.ClientSession,
		"sslmerchant":     g.cfg.SSLMerchantID,
		"transactiontype": "preauthorization",
		"version":         "2.0",
		"locale":          "de",
		"payment_options": "3dsecure20;mobile",
		"notifyurl":       g.cfg.NotifyURL,

		"tdsCustomerEmail":                    rec.CustomerEmail,
		"tdsCustomerBillingAddress.city":      rec.City,
		"tdsCustomerBillingAddress.country":   rec.Country,
		"tdsCustomerBillingAddress.line1":     rec.Street,
		"tdsCustomerBillingAddress.postCode":  rec.Zip,
		"tdsCustomerShippingAddress.city":     rec.City,
		"tdsCustomerShippingAddress.country":  rec.Country,
		"tdsCustomerShippingAddress.line1":    rec.Street,
		"tdsCustomerShippingAddress.postCode": rec.Zip,
	}
	return buildFormURL(g.api.FormServiceURL(), params, s.Sign(g.cfg.SSLPassword, params))
}

// debitRedirectURL builds the hosted direct-debit form URL. basketid/orderid
// are swapped relative to the card form, and the state address fields are
// included.
func debitRedirectURL(g *Gateway, rec *model.PaymentRecord, s signer.Signer) string {
	params := map[string]string{
		"amount":          formatAmount(rec.Amount),
		"basketid":        rec.Number,
		"command":         "sslform",
		"currency":        rec.EffectiveCurrency(),
		"date":            time.Now().Format(redirectDateLayout),
		"orderid":         rec.OrderID,
		"paymentmethod":   "directdebit",
		"sessionid":       rec.ClientSession,
		"sslmerchant":     g.cfg.SSLMerchantID,
		"transactiontype": "preauthorization",
		"payment_options": "3dsecure20",
		"version":         "2.0",
		"notifyurl":       g.cfg.NotifyURL,

		"tdsCustomerEmail":                    rec.CustomerEmail,
		"tdsCustomerBillingAddress.city":      rec.City,
		"tdsCustomerBillingAddress.country":   rec.Country,
		"tdsCustomerBillingAddress.line1":     rec.Street,
		"tdsCustomerBillingAddress.postCode":  rec.Zip,
		"tdsCustomerBillingAddress.state":     rec.State,
		"tdsCustomerShippingAddress.city":     rec.City,
		"tdsCustomerShippingAddress.country":  rec.Country,
		"tdsCustomerShippingAddress.line1":    rec.Street,
		"tdsCustomerShippingAddress.postCode": rec.Zip,
		"tdsCustomerShippingAddress.state":    rec.State,
	}
	return buildFormURL(g.api.FormServiceURL(), params, s.Sign(g.cfg.SSLPassword, params))
}

// buildFormURL assembles the redirect URL. Parameter values use ordinary URL
// encoding; the signature is hex already and is appended unencoded as hmac1.
func buildFormURL(base string, params map[string]string, hmac string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(params)+1)
	for _, k := range keys {
		pairs = append(pairs, k+"="+url.QueryEscape(params[k]))
	}
	pairs = append(pairs, "hmac1="+hmac)

	return base + "?" + strings.Join(pairs, "&")
}

// formatAmount renders minor units as the provider's decimal-comma form:
// 1234 → "12,34".
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d,%02d", minor/100, minor%100)
}
