package gateway

import "errors"

// Precondition and routing errors. These fail fast; the provider is never
// contacted.
var (
	// ErrTransactionRequired means capture, cancel or refund was attempted
	// before the provider issued a transaction reference.
	ErrTransactionRequired = errors.New("transaction reference (trefnum) is required")

	// ErrUnsupportedMethod means the record carries a payment method the
	// gateway does not recognize, which is a caller-side routing bug.
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// ResultKind tags the outcome variant of an operation.
type ResultKind string

const (
	// ResultDone means the operation ran to completion; the record holds the
	// outcome (including provider declines, which are data, not errors).
	ResultDone ResultKind = "done"
	// ResultRedirect means the operation is suspended: the browser must be
	// sent to the hosted payment form, and the operation re-invoked when the
	// provider calls back with a token.
	ResultRedirect ResultKind = "redirect"
	// ResultMandate means the direct-debit mandate text must be shown and
	// accepted before token acquisition can proceed.
	ResultMandate ResultKind = "mandate"
)

// Result reports how an operation left the payment. Redirects are expected,
// frequent control flow and therefore a result variant rather than an error.
type Result struct {
	Kind        ResultKind `json:"kind"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	MandateHTML string     `json:"mandate_html,omitempty"`
}

func done() Result {
	return Result{Kind: ResultDone}
}

func redirectTo(url string) Result {
	return Result{Kind: ResultRedirect, RedirectURL: url}
}

func showMandate(html string) Result {
	return Result{Kind: ResultMandate, MandateHTML: html}
}
