package domain

import (
	"encoding/json"
	"time"
)

// Record is the stored form of a case entity: its identity, lifecycle state
// and the JSON body of the typed entity.
type Record struct {
	ID        string
	Domain    Domain
	Status    Status
	Body      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entity is implemented by every case record type.
type Entity interface {
	Header() *Base
	Validate() error
}

// Base carries the fields every entity shares.
type Base struct {
	ID     string `json:"id,omitempty"`
	Status Status `json:"status,omitempty"`

	// Event requests a lifecycle transition on update. It is never stored.
	Event Event `json:"event,omitempty"`
}

// Header returns the shared fields of the entity.
func (b *Base) Header() *Base { return b }

// Offense is a recorded traffic violation.
type Offense struct {
	Base
	PlateNumber   string    `json:"plate_number"`
	DriverName    string    `json:"driver_name"`
	DriverLicense string    `json:"driver_license,omitempty"`
	OffenseCode   string    `json:"offense_code"`
	Location      string    `json:"location,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	FineCents     int64     `json:"fine_cents"`
	Points        int       `json:"points"`
}

func (o *Offense) Validate() error {
	switch {
	case o.PlateNumber == "":
		return &ValidationError{Domain: DomainOffense, Field: "plate_number", Reason: "required"}
	case o.OffenseCode == "":
		return &ValidationError{Domain: DomainOffense, Field: "offense_code", Reason: "required"}
	case o.FineCents < 0:
		return &ValidationError{Domain: DomainOffense, Field: "fine_cents", Reason: "must not be negative"}
	case o.Points < 0 || o.Points > MaxPoints:
		return &ValidationError{Domain: DomainOffense, Field: "points", Reason: "out of range"}
	}
	return nil
}

// Payment is the fine settlement attached to an offense.
type Payment struct {
	Base
	OffenseID     string     `json:"offense_id"`
	PayerName     string     `json:"payer_name,omitempty"`
	AmountCents   int64      `json:"amount_cents"`
	PaidCents     int64      `json:"paid_cents"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	ReceiptNumber string     `json:"receipt_number,omitempty"`
}

func (p *Payment) Validate() error {
	switch {
	case p.OffenseID == "":
		return &ValidationError{Domain: DomainPayment, Field: "offense_id", Reason: "required"}
	case p.AmountCents <= 0:
		return &ValidationError{Domain: DomainPayment, Field: "amount_cents", Reason: "must be positive"}
	case p.PaidCents < 0 || p.PaidCents > p.AmountCents:
		return &ValidationError{Domain: DomainPayment, Field: "paid_cents", Reason: "must be between 0 and amount_cents"}
	}
	return nil
}

// Appeal is a driver's request to overturn an offense.
type Appeal struct {
	Base
	OffenseID     string `json:"offense_id"`
	AppellantName string `json:"appellant_name"`
	Reason        string `json:"reason"`
	Contact       string `json:"contact,omitempty"`
}

func (a *Appeal) Validate() error {
	switch {
	case a.OffenseID == "":
		return &ValidationError{Domain: DomainAppeal, Field: "offense_id", Reason: "required"}
	case a.AppellantName == "":
		return &ValidationError{Domain: DomainAppeal, Field: "appellant_name", Reason: "required"}
	case a.Reason == "":
		return &ValidationError{Domain: DomainAppeal, Field: "reason", Reason: "required"}
	}
	return nil
}

// AppealAcceptance is the intake review that decides whether an appeal is
// complete enough to be processed.
type AppealAcceptance struct {
	Base
	AppealID   string `json:"appeal_id"`
	Reviewer   string `json:"reviewer,omitempty"`
	Remarks    string `json:"remarks,omitempty"`
	Supplement string `json:"supplement,omitempty"`
}

func (a *AppealAcceptance) Validate() error {
	if a.AppealID == "" {
		return &ValidationError{Domain: DomainAppealAcceptance, Field: "appeal_id", Reason: "required"}
	}
	return nil
}

// MaxPoints is the size of a driver's point budget per scoring period.
const MaxPoints = 12

// Deduction records penalty points taken from a driver's license.
type Deduction struct {
	Base
	OffenseID     string    `json:"offense_id"`
	DriverLicense string    `json:"driver_license"`
	Points        int       `json:"points"`
	DeductedAt    time.Time `json:"deducted_at"`
	Handler       string    `json:"handler,omitempty"`
}

func (d *Deduction) Validate() error {
	switch {
	case d.OffenseID == "":
		return &ValidationError{Domain: DomainDeduction, Field: "offense_id", Reason: "required"}
	case d.DriverLicense == "":
		return &ValidationError{Domain: DomainDeduction, Field: "driver_license", Reason: "required"}
	case d.Points < 1 || d.Points > MaxPoints:
		return &ValidationError{Domain: DomainDeduction, Field: "points", Reason: "must be between 1 and 12"}
	}
	return nil
}
