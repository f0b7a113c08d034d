package domain

// Domain identifies one business lifecycle and the transition table that governs it.
type Domain string

const (
	DomainOffense          Domain = "offense"
	DomainPayment          Domain = "payment"
	DomainAppeal           Domain = "appeal"
	DomainAppealAcceptance Domain = "appeal_acceptance"
	DomainDeduction        Domain = "deduction"
)

// Domains lists every supported domain in a stable order.
var Domains = []Domain{
	DomainOffense,
	DomainPayment,
	DomainAppeal,
	DomainAppealAcceptance,
	DomainDeduction,
}

// Status represents the lifecycle state of a case record.
type Status string

// Event represents an action that triggers a state transition.
type Event string

// Offense lifecycle.
const (
	OffenseUnprocessed    Status = "UNPROCESSED"
	OffenseProcessing     Status = "PROCESSING"
	OffenseProcessed      Status = "PROCESSED"
	OffenseAppealing      Status = "APPEALING"
	OffenseAppealApproved Status = "APPEAL_APPROVED"
	OffenseAppealRejected Status = "APPEAL_REJECTED"
	OffenseCancelled      Status = "CANCELLED"

	OffenseStartProcessing    Event = "START_PROCESSING"
	OffenseCompleteProcessing Event = "COMPLETE_PROCESSING"
	OffenseSubmitAppeal       Event = "SUBMIT_APPEAL"
	OffenseApproveAppeal      Event = "APPROVE_APPEAL"
	OffenseRejectAppeal       Event = "REJECT_APPEAL"
	OffenseCancel             Event = "CANCEL"
)

// Payment lifecycle.
const (
	PaymentUnpaid  Status = "UNPAID"
	PaymentPartial Status = "PARTIAL"
	PaymentPaid    Status = "PAID"
	PaymentOverdue Status = "OVERDUE"
	PaymentWaived  Status = "WAIVED"

	PaymentPartialPay      Event = "PARTIAL_PAY"
	PaymentCompletePayment Event = "COMPLETE_PAYMENT"
	PaymentMarkOverdue     Event = "MARK_OVERDUE"
	PaymentWaive           Event = "WAIVE"
)

// Appeal process lifecycle.
const (
	AppealUnprocessed Status = "UNPROCESSED"
	AppealUnderReview Status = "UNDER_REVIEW"
	AppealApproved    Status = "APPROVED"
	AppealRejected    Status = "REJECTED"
	AppealWithdrawn   Status = "WITHDRAWN"

	AppealStartReview Event = "START_REVIEW"
	AppealApprove     Event = "APPROVE"
	AppealReject      Event = "REJECT"
	AppealReopen      Event = "REOPEN"
	AppealWithdraw    Event = "WITHDRAW"
)

// Appeal acceptance lifecycle.
const (
	AcceptancePending        Status = "PENDING"
	AcceptanceAccepted       Status = "ACCEPTED"
	AcceptanceRejected       Status = "REJECTED"
	AcceptanceNeedSupplement Status = "NEED_SUPPLEMENT"

	AcceptanceAccept             Event = "ACCEPT"
	AcceptanceReject             Event = "REJECT"
	AcceptanceRequestSupplement  Event = "REQUEST_SUPPLEMENT"
	AcceptanceSupplementComplete Event = "SUPPLEMENT_COMPLETE"
	AcceptanceResubmit           Event = "RESUBMIT"
)

// Deduction lifecycle.
const (
	DeductionEffective Status = "EFFECTIVE"
	DeductionCancelled Status = "CANCELLED"
	DeductionRestored  Status = "RESTORED"

	DeductionCancel     Event = "CANCEL"
	DeductionRestore    Event = "RESTORE"
	DeductionReactivate Event = "REACTIVATE"
)

// Transition defines a valid state change: an event moves a record from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Machine is the immutable definition of one domain's lifecycle.
type Machine struct {
	Domain      Domain
	Initial     Status
	States      []Status
	Events      []Event
	Transitions []Transition
}

// HasState reports whether s is one of the machine's states.
func (m Machine) HasState(s Status) bool {
	for _, st := range m.States {
		if st == s {
			return true
		}
	}
	return false
}

// HasEvent reports whether e is one of the machine's events.
func (m Machine) HasEvent(e Event) bool {
	for _, ev := range m.Events {
		if ev == e {
			return true
		}
	}
	return false
}

var machines = map[Domain]Machine{
	DomainOffense: {
		Domain:  DomainOffense,
		Initial: OffenseUnprocessed,
		States: []Status{
			OffenseUnprocessed, OffenseProcessing, OffenseProcessed, OffenseAppealing,
			OffenseAppealApproved, OffenseAppealRejected, OffenseCancelled,
		},
		Events: []Event{
			OffenseStartProcessing, OffenseCompleteProcessing, OffenseSubmitAppeal,
			OffenseApproveAppeal, OffenseRejectAppeal, OffenseCancel,
		},
		Transitions: []Transition{
			{Event: OffenseStartProcessing, Src: OffenseUnprocessed, Dst: OffenseProcessing},
			{Event: OffenseCompleteProcessing, Src: OffenseProcessing, Dst: OffenseProcessed},
			{Event: OffenseSubmitAppeal, Src: OffenseProcessed, Dst: OffenseAppealing},
			{Event: OffenseApproveAppeal, Src: OffenseAppealing, Dst: OffenseAppealApproved},
			{Event: OffenseRejectAppeal, Src: OffenseAppealing, Dst: OffenseAppealRejected},
			{Event: OffenseCancel, Src: OffenseUnprocessed, Dst: OffenseCancelled},
			{Event: OffenseCancel, Src: OffenseProcessing, Dst: OffenseCancelled},
			{Event: OffenseCancel, Src: OffenseProcessed, Dst: OffenseCancelled},
		},
	},
	DomainPayment: {
		Domain:  DomainPayment,
		Initial: PaymentUnpaid,
		States:  []Status{PaymentUnpaid, PaymentPartial, PaymentPaid, PaymentOverdue, PaymentWaived},
		Events:  []Event{PaymentPartialPay, PaymentCompletePayment, PaymentMarkOverdue, PaymentWaive},
		Transitions: []Transition{
			{Event: PaymentPartialPay, Src: PaymentUnpaid, Dst: PaymentPartial},
			{Event: PaymentCompletePayment, Src: PaymentUnpaid, Dst: PaymentPaid},
			{Event: PaymentMarkOverdue, Src: PaymentUnpaid, Dst: PaymentOverdue},
			{Event: PaymentWaive, Src: PaymentUnpaid, Dst: PaymentWaived},
			{Event: PaymentCompletePayment, Src: PaymentPartial, Dst: PaymentPaid},
			{Event: PaymentMarkOverdue, Src: PaymentPartial, Dst: PaymentOverdue},
			{Event: PaymentWaive, Src: PaymentPartial, Dst: PaymentWaived},
			{Event: PaymentCompletePayment, Src: PaymentOverdue, Dst: PaymentPaid},
			{Event: PaymentWaive, Src: PaymentOverdue, Dst: PaymentWaived},
			{Event: PaymentWaive, Src: PaymentPaid, Dst: PaymentWaived},
		},
	},
	DomainAppeal: {
		Domain:  DomainAppeal,
		Initial: AppealUnprocessed,
		States:  []Status{AppealUnprocessed, AppealUnderReview, AppealApproved, AppealRejected, AppealWithdrawn},
		Events:  []Event{AppealStartReview, AppealApprove, AppealReject, AppealReopen, AppealWithdraw},
		Transitions: []Transition{
			{Event: AppealStartReview, Src: AppealUnprocessed, Dst: AppealUnderReview},
			{Event: AppealApprove, Src: AppealUnderReview, Dst: AppealApproved},
			{Event: AppealReject, Src: AppealUnderReview, Dst: AppealRejected},
			{Event: AppealReopen, Src: AppealRejected, Dst: AppealUnderReview},
			{Event: AppealWithdraw, Src: AppealUnprocessed, Dst: AppealWithdrawn},
			{Event: AppealWithdraw, Src: AppealUnderReview, Dst: AppealWithdrawn},
		},
	},
	DomainAppealAcceptance: {
		Domain:  DomainAppealAcceptance,
		Initial: AcceptancePending,
		States:  []Status{AcceptancePending, AcceptanceAccepted, AcceptanceRejected, AcceptanceNeedSupplement},
		Events: []Event{
			AcceptanceAccept, AcceptanceReject, AcceptanceRequestSupplement,
			AcceptanceSupplementComplete, AcceptanceResubmit,
		},
		Transitions: []Transition{
			{Event: AcceptanceAccept, Src: AcceptancePending, Dst: AcceptanceAccepted},
			{Event: AcceptanceReject, Src: AcceptancePending, Dst: AcceptanceRejected},
			{Event: AcceptanceRequestSupplement, Src: AcceptancePending, Dst: AcceptanceNeedSupplement},
			{Event: AcceptanceSupplementComplete, Src: AcceptanceNeedSupplement, Dst: AcceptancePending},
			{Event: AcceptanceResubmit, Src: AcceptanceRejected, Dst: AcceptancePending},
		},
	},
	DomainDeduction: {
		Domain:  DomainDeduction,
		Initial: DeductionEffective,
		States:  []Status{DeductionEffective, DeductionCancelled, DeductionRestored},
		Events:  []Event{DeductionCancel, DeductionRestore, DeductionReactivate},
		Transitions: []Transition{
			{Event: DeductionCancel, Src: DeductionEffective, Dst: DeductionCancelled},
			{Event: DeductionRestore, Src: DeductionEffective, Dst: DeductionRestored},
			{Event: DeductionReactivate, Src: DeductionCancelled, Dst: DeductionEffective},
			{Event: DeductionReactivate, Src: DeductionRestored, Dst: DeductionEffective},
		},
	},
}

// MachineFor returns the lifecycle definition of d.
func MachineFor(d Domain) (Machine, bool) {
	m, ok := machines[d]
	return m, ok
}

// Machines returns every lifecycle definition in the order of Domains.
func Machines() []Machine {
	out := make([]Machine, 0, len(Domains))
	for _, d := range Domains {
		out = append(out, machines[d])
	}
	return out
}

// ParseDomain validates a domain name received from outside the process.
func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if _, ok := machines[d]; !ok {
		return "", &ForeignValueError{Domain: d, Kind: "domain", Value: s}
	}
	return d, nil
}
