package domain_test

import (
	"errors"
	"testing"

	"github.com/neomorfeo/casebook/internal/domain"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		entity domain.Entity
		field  string
	}{
		{"offense ok", &domain.Offense{PlateNumber: "ABC123", OffenseCode: "SPD-20", Points: 3}, ""},
		{"offense no plate", &domain.Offense{OffenseCode: "SPD-20"}, "plate_number"},
		{"offense points", &domain.Offense{PlateNumber: "A", OffenseCode: "X", Points: 13}, "points"},
		{"payment overpaid", &domain.Payment{OffenseID: "o-1", AmountCents: 100, PaidCents: 101}, "paid_cents"},
		{"payment ok", &domain.Payment{OffenseID: "o-1", AmountCents: 100, PaidCents: 40}, ""},
		{"appeal no reason", &domain.Appeal{OffenseID: "o-1", AppellantName: "Li"}, "reason"},
		{"acceptance no appeal", &domain.AppealAcceptance{}, "appeal_id"},
		{"deduction zero points", &domain.Deduction{OffenseID: "o-1", DriverLicense: "D1"}, "points"},
		{"deduction ok", &domain.Deduction{OffenseID: "o-1", DriverLicense: "D1", Points: 6}, ""},
	}

	for _, tc := range cases {
		err := tc.entity.Validate()
		if tc.field == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		var valErr *domain.ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
			continue
		}
		if valErr.Field != tc.field {
			t.Errorf("%s: field = %q, want %q", tc.name, valErr.Field, tc.field)
		}
	}
}

func TestReservation_Owned(t *testing.T) {
	owned := map[domain.Reservation]bool{
		domain.ReservationAcquired: true,
		domain.ReservationRetry:    true,
		domain.ReservationBusy:     false,
		domain.ReservationDone:     false,
	}
	for r, want := range owned {
		if got := r.Owned(); got != want {
			t.Errorf("%s.Owned() = %v, want %v", r, got, want)
		}
	}
}
