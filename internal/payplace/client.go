// Package payplace talks to the Payplace web API: form-encoded POST requests
// against Request.po with HTTP Basic auth, and URL-encoded response bodies.
package payplace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// API commands accepted by Request.po.
const (
	CommandOpen             = "open"
	CommandPreauthorization = "preauthorization"
	CommandAuthorization    = "authorization"
	CommandCapture          = "capture"
	CommandReversal         = "reversal"
	CommandRefund           = "refund"
	CommandCredit           = "credit"
)

// payment_options tags.
const (
	OptionsInitIframe   = "init_iframe"
	OptionsCreditCard   = "creditcard"
	OptionsELV          = "elv"
	OptionsGeneratePPAN = "generate_ppan"
	Options3DSecure20   = "3dsecure20"
)

const (
	sandboxAPIURL = "https://testsystem.payplace.de/web-api/Request.po"
	liveAPIURL    = "https://system.payplace.de/web-api/Request.po"

	sandboxFormURL = "https://testsystem.payplace.de/web-api/SSLPayment.po"
	liveFormURL    = "https://system.payplace.de/web-api/SSLPayment.po"
)

// Fields is a flat provider field mapping, both for requests and decoded
// responses.
type Fields map[string]string

// Options configures the client. BaseURL and FormURL override the default
// endpoints and exist for tests.
type Options struct {
	MerchantID string
	Password   string
	Sandbox    bool
	BaseURL    string
	FormURL    string
}

// TransportError reports an HTTP-level failure: the request never reached the
// provider, or the provider answered outside 2xx. The payment record is left
// unmodified and the whole operation may be retried by the caller.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payplace request failed: %v", e.Err)
	}
	return fmt.Sprintf("payplace returned status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client executes signed API calls against the Payplace endpoints. It never
// retries; retry policy belongs to the caller.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client. A nil httpClient falls back to http.DefaultClient;
// callers needing bounded latency configure timeouts there.
func New(opts Options, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		opts:       opts,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// APIEndpoint returns the Request.po URL for the configured environment.
func (c *Client) APIEndpoint() string {
	if c.opts.BaseURL != "" {
		return c.opts.BaseURL
	}
	if c.opts.Sandbox {
		return sandboxAPIURL
	}
	return liveAPIURL
}

// FormServiceURL returns the SSLPayment.po URL for the configured environment.
func (c *Client) FormServiceURL() string {
	if c.opts.FormURL != "" {
		return c.opts.FormURL
	}
	if c.opts.Sandbox {
		return sandboxFormURL
	}
	return liveFormURL
}

// Open initializes an iframe session (command=open). payment_options defaults
// to init_iframe unless the caller set one.
func (c *Client) Open(ctx context.Context, fields Fields) (Fields, error) {
	f := clone(fields)
	f["version"] = "1.1"
	f["command"] = CommandOpen
	if _, ok := f["payment_options"]; !ok {
		f["payment_options"] = OptionsInitIframe
	}

	c.logger.Info("payplace_open", "fields", Sanitize(f))
	return c.do(ctx, f)
}

// Authorize preauthorizes a payment with a token or ppan.
func (c *Client) Authorize(ctx context.Context, fields Fields) (Fields, error) {
	f := clone(fields)
	f["command"] = CommandPreauthorization
	f["payment_options"] = optionsFor(f["payment_method"])

	c.logger.Info("payplace_authorize",
		"orderid", f["orderid"],
		"payment_method", f["payment_method"],
	)
	return c.do(ctx, f)
}

// Capture settles a previously authorized payment.
func (c *Client) Capture(ctx context.Context, fields Fields) (Fields, error) {
	f := clone(fields)
	f["command"] = CommandCapture
	f["payment_options"] = optionsFor(f["payment_method"])

	c.logger.Info("payplace_capture",
		"orderid", f["orderid"],
		"trefnum", f["trefnum"],
	)
	return c.do(ctx, f)
}

// Reversal cancels an authorization.
func (c *Client) Reversal(ctx context.Context, fields Fields) (Fields, error) {
	f := clone(fields)
	f["command"] = CommandReversal
	f["payment_options"] = optionsFor(f["payment_method"])

	c.logger.Info("payplace_reversal",
		"orderid", f["orderid"],
		"trefnum", f["trefnum"],
	)
	return c.do(ctx, f)
}

// Refund returns a captured amount to the customer.
func (c *Client) Refund(ctx context.Context, fields Fields) (Fields, error) {
	f := clone(fields)
	f["command"] = CommandRefund
	f["payment_options"] = optionsFor(f["payment_method"])

	c.logger.Info("payplace_refund",
		"orderid", f["orderid"],
		"trefnum", f["trefnum"],
		"amount", f["amount"],
	)
	return c.do(ctx, f)
}

// IsSuccess applies the provider's success predicate: posherr must be "0" and
// rc, when present, must be "000".
func IsSuccess(response Fields) bool {
	if response["posherr"] != "0" {
		return false
	}
	rc, ok := response["rc"]
	return !ok || rc == "000"
}

// ErrorMessage extracts the human-readable provider message.
func ErrorMessage(response Fields) string {
	if msg, ok := response["rmsg"]; ok && msg != "" {
		return msg
	}
	return "Unknown error occurred"
}

// do posts the fields to Request.po and decodes the response body.
func (c *Client) do(ctx context.Context, fields Fields) (Fields, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.opts.MerchantID, c.opts.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("payplace_request_failed", "error", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("payplace_bad_status",
			"status_code", resp.StatusCode,
			"body_length", len(body),
		)
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	decoded := DecodeResponse(string(body))
	c.logger.Debug("payplace_response", "fields", Sanitize(decoded))
	return decoded, nil
}

// DecodeResponse parses a provider response body. The body is a URL-encoded
// query string whose values are encoded twice, so every value is unescaped
// one extra time.
func DecodeResponse(body string) Fields {
	fields := Fields{}
	values, err := url.ParseQuery(body)
	if err != nil {
		return fields
	}
	for key := range values {
		value := values.Get(key)
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		fields[key] = value
	}
	return fields
}

// Sanitize masks sensitive fields before logging.
func Sanitize(fields Fields) Fields {
	out := clone(fields)
	for _, key := range []string{"password", "creditc", "cvcode", "iban", "token"} {
		if _, ok := out[key]; ok {
			out[key] = "***HIDDEN***"
		}
	}
	return out
}

func optionsFor(paymentMethod string) string {
	if paymentMethod == "elv" {
		return OptionsELV
	}
	return OptionsCreditCard
}

func clone(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
