package model

import (
	"strconv"
	"time"
)

// Method identifies the payment method of a record, using the provider's
// payment_options vocabulary.
type Method string

const (
	MethodCreditCard  Method = "creditcard"
	MethodDirectDebit Method = "elv"
)

// Valid returns true if the method is one the gateway can process.
func (m Method) Valid() bool {
	return m == MethodCreditCard || m == MethodDirectDebit
}

// Lifecycle status strings stored on the record. Transitions are monotonic on
// the happy path (new → pending → authorized → captured); failed, canceled and
// refunded are reachable from any non-terminal state.
const (
	StatusNew        = "new"
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
	StatusCanceled   = "canceled"
)

// Provider result codes. posherr is the authoritative success signal; rc is a
// secondary check used on capture confirmations.
const (
	PosherrSuccess = "0"
	RCSuccess      = "000"
)

// PaymentRecord is the single mutable aggregate passed through every gateway
// operation. The caller owns it and persists it between operations; the
// gateway only reads prior fields and writes new ones. Empty string means the
// field was never set by the provider.
type PaymentRecord struct {
	OrderID  string `json:"orderid"`
	Number   string `json:"number"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Method   Method `json:"payment_method"`

	ClientSession       string `json:"client_session,omitempty"`
	ClientConfiguration string `json:"client_configuration,omitempty"`
	Token               string `json:"token,omitempty"`
	PPAN                string `json:"ppan,omitempty"`

	Trefnum string `json:"trefnum,omitempty"`
	Posherr string `json:"posherr,omitempty"`
	RC      string `json:"rc,omitempty"`
	Rmsg    string `json:"rmsg,omitempty"`

	Status        string     `json:"status"`
	CaptureStatus string     `json:"capture_status,omitempty"`
	Captured      bool       `json:"captured"`
	Cancelled     bool       `json:"cancelled"`
	Refunded      bool       `json:"refunded"`
	AuthorizedAt  *time.Time `json:"authorized_at,omitempty"`
	CapturedAt    *time.Time `json:"captured_at,omitempty"`

	// Optional overrides for partial captures and refunds, in minor units.
	CaptureAmount int64 `json:"capture_amount,omitempty"`
	RefundAmount  int64 `json:"refund_amount,omitempty"`

	SuccessURL      string `json:"successurl,omitempty"`
	ErrorURL        string `json:"errorurl,omitempty"`
	BackURL         string `json:"backurl,omitempty"`
	NotificationURL string `json:"notificationurl,omitempty"`

	// Customer data used for 3-D Secure address fields and the SEPA mandate.
	CustomerEmail string `json:"customer_email,omitempty"`
	FirstName     string `json:"firstname,omitempty"`
	LastName      string `json:"lastname,omitempty"`
	Street        string `json:"street,omitempty"`
	StreetNumber  string `json:"street_number,omitempty"`
	City          string `json:"city,omitempty"`
	Zip           string `json:"zip,omitempty"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`

	MandateAccepted bool `json:"mandate_accepted"`

	CardBrand        string `json:"card_brand,omitempty"`
	CardNumberMasked string `json:"card_number_masked,omitempty"`
	CardHolder       string `json:"card_holder,omitempty"`

	IBANMasked    string `json:"iban_masked,omitempty"`
	BIC           string `json:"bic,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`

	// Extra holds provider fields with no dedicated slot, so notification
	// merges never drop data.
	Extra map[string]string `json:"extra,omitempty"`
}

// HasTransaction reports whether the provider issued a transaction reference.
// Its presence implies at least an authorized state.
func (r *PaymentRecord) HasTransaction() bool {
	return r.Trefnum != ""
}

// ProviderContacted reports whether any provider result was recorded.
func (r *PaymentRecord) ProviderContacted() bool {
	return r.Posherr != ""
}

// EffectiveCurrency returns the record currency, defaulting to EUR.
func (r *PaymentRecord) EffectiveCurrency() string {
	if r.Currency == "" {
		return "EUR"
	}
	return r.Currency
}

// Apply merges provider fields into the record. Any field present overwrites
// the record field of the same name; absent fields are untouched. Field names
// without a dedicated slot land in Extra.
func (r *PaymentRecord) Apply(fields map[string]string) {
	for key, value := range fields {
		switch key {
		case "orderid":
			r.OrderID = value
		case "amount":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				r.Amount = n
			} else {
				r.setExtra(key, value)
			}
		case "currency":
			r.Currency = value
		case "payment_method":
			r.Method = Method(value)
		case "clientSession":
			r.ClientSession = value
		case "clientConfiguration":
			r.ClientConfiguration = value
		case "token":
			r.Token = value
		case "ppan":
			r.PPAN = value
		case "trefnum":
			r.Trefnum = value
		case "posherr":
			r.Posherr = value
		case "rc":
			r.RC = value
		case "rmsg":
			r.Rmsg = value
		case "status":
			r.Status = value
		case "card_brand":
			r.CardBrand = value
		case "card_number_masked":
			r.CardNumberMasked = value
		case "card_holder":
			r.CardHolder = value
		case "iban_masked":
			r.IBANMasked = value
		case "bic":
			r.BIC = value
		case "account_holder":
			r.AccountHolder = value
		default:
			r.setExtra(key, value)
		}
	}
}

func (r *PaymentRecord) setExtra(key, value string) {
	if r.Extra == nil {
		r.Extra = make(map[string]string)
	}
	r.Extra[key] = value
}
