package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProject(t *testing.T) {
	tests := []struct {
		name string
		rec  PaymentRecord
		want CanonicalStatus
	}{
		{
			name: "untouched record is new",
			rec:  PaymentRecord{Status: StatusNew},
			want: CanonicalNew,
		},
		{
			name: "posherr failure wins over status",
			rec:  PaymentRecord{Posherr: "13", Status: StatusAuthorized, Trefnum: "T-1"},
			want: CanonicalFailed,
		},
		{
			name: "captured",
			rec:  PaymentRecord{Posherr: "0", Status: StatusCaptured, Trefnum: "T-1"},
			want: CanonicalCaptured,
		},
		{
			name: "authorized with transaction reference",
			rec:  PaymentRecord{Posherr: "0", Status: StatusAuthorized, Trefnum: "T-1"},
			want: CanonicalAuthorized,
		},
		{
			name: "authorized without transaction reference is pending",
			rec:  PaymentRecord{Posherr: "0", Status: StatusAuthorized},
			want: CanonicalPending,
		},
		{
			name: "pending",
			rec:  PaymentRecord{Posherr: "0", Status: StatusPending},
			want: CanonicalPending,
		},
		{
			name: "success with empty status is pending",
			rec:  PaymentRecord{Posherr: "0"},
			want: CanonicalPending,
		},
		{
			name: "failed status",
			rec:  PaymentRecord{Posherr: "0", Status: StatusFailed},
			want: CanonicalFailed,
		},
		{
			name: "refunded status",
			rec:  PaymentRecord{Posherr: "0", Status: StatusRefunded},
			want: CanonicalRefunded,
		},
		{
			name: "canceled status",
			rec:  PaymentRecord{Posherr: "0", Status: StatusCanceled},
			want: CanonicalCanceled,
		},
		{
			name: "provider misspelling of canceled",
			rec:  PaymentRecord{Posherr: "0", Status: "candeled"},
			want: CanonicalCanceled,
		},
		{
			name: "unknown status is failed",
			rec:  PaymentRecord{Posherr: "0", Status: "weird"},
			want: CanonicalFailed,
		},
		{
			name: "cancelled flag overrides captured",
			rec:  PaymentRecord{Posherr: "0", Status: StatusCaptured, Cancelled: true},
			want: CanonicalCanceled,
		},
		{
			name: "refunded flag overrides captured",
			rec:  PaymentRecord{Posherr: "0", Status: StatusCaptured, Refunded: true},
			want: CanonicalRefunded,
		},
		{
			name: "refunded flag wins over cancelled flag",
			rec:  PaymentRecord{Posherr: "0", Status: StatusCaptured, Cancelled: true, Refunded: true},
			want: CanonicalRefunded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Project(&tt.rec))
		})
	}
}

func TestProjectIsPure(t *testing.T) {
	rec := PaymentRecord{Posherr: "0", Status: StatusAuthorized, Trefnum: "T-1"}
	before := rec

	_ = Project(&rec)
	_ = Project(&rec)

	assert.Equal(t, before, rec)
}
