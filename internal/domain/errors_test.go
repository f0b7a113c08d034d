package domain_test

import (
	"fmt"
	"testing"

	"github.com/neomorfeo/casebook/internal/domain"
)

func TestTransitionError_Error(t *testing.T) {
	err := &domain.TransitionError{
		Domain:  domain.DomainPayment,
		Event:   domain.PaymentPartialPay,
		Current: domain.PaymentOverdue,
	}
	want := `payment: event "PARTIAL_PAY" is not valid from state "OVERDUE"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestForeignValueError_Error(t *testing.T) {
	cases := []struct {
		err  *domain.ForeignValueError
		want string
	}{
		{&domain.ForeignValueError{Kind: "domain", Value: "parking"}, `unknown domain "parking"`},
		{
			&domain.ForeignValueError{Domain: domain.DomainDeduction, Kind: "status", Value: "PAID"},
			`status "PAID" does not belong to domain "deduction"`,
		},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transition", &domain.TransitionError{}, true},
		{"wrapped validation", fmt.Errorf("create: %w", &domain.ValidationError{}), true},
		{"foreign", &domain.ForeignValueError{}, true},
		{"not found", domain.ErrRecordNotFound, false},
		{"stale", fmt.Errorf("update: %w", &domain.StaleRecordError{}), false},
		{"other", fmt.Errorf("disk full"), false},
	}
	for _, tc := range cases {
		if got := domain.IsPermanent(tc.err); got != tc.want {
			t.Errorf("%s: IsPermanent = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTransitionError_TargetOnly(t *testing.T) {
	err := &domain.TransitionError{
		Domain:  domain.DomainDeduction,
		Current: domain.DeductionCancelled,
		Target:  domain.DeductionRestored,
	}
	want := `deduction: cannot move from state "CANCELLED" to "RESTORED"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
