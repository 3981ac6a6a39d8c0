package model

// CanonicalStatus is the provider-independent payment status consumed by the
// caller.
type CanonicalStatus string

const (
	CanonicalNew        CanonicalStatus = "new"
	CanonicalPending    CanonicalStatus = "pending"
	CanonicalAuthorized CanonicalStatus = "authorized"
	CanonicalCaptured   CanonicalStatus = "captured"
	CanonicalFailed     CanonicalStatus = "failed"
	CanonicalRefunded   CanonicalStatus = "refunded"
	CanonicalCanceled   CanonicalStatus = "canceled"
)

// Project maps the record's accumulated fields onto a canonical status. It is
// a pure read-side view: posherr decides first, then the lifecycle status
// string, and the cancelled/refunded flags override everything else.
func Project(r *PaymentRecord) CanonicalStatus {
	status := project(r)

	// Terminal flags win regardless of the primary mapping.
	if r.Cancelled {
		status = CanonicalCanceled
	}
	if r.Refunded {
		status = CanonicalRefunded
	}
	return status
}

func project(r *PaymentRecord) CanonicalStatus {
	if !r.ProviderContacted() {
		return CanonicalNew
	}
	if r.Posherr != PosherrSuccess {
		return CanonicalFailed
	}

	switch r.Status {
	case StatusCaptured:
		return CanonicalCaptured
	case StatusAuthorized:
		// Authorized without a transaction reference has not actually
		// completed at the provider.
		if r.HasTransaction() {
			return CanonicalAuthorized
		}
		return CanonicalPending
	case StatusPending, "":
		return CanonicalPending
	case StatusFailed:
		return CanonicalFailed
	case StatusRefunded:
		return CanonicalRefunded
	case StatusCanceled, "candeled": // the provider emits the misspelling
		return CanonicalCanceled
	default:
		return CanonicalFailed
	}
}
