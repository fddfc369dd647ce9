package models

// PaymentSession is the provider-issued hosted checkout session.
type PaymentSession struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"url,omitempty"`
}

// ProviderStatus is the payment_status vocabulary of the hosted checkout provider.
type ProviderStatus string

const (
	ProviderStatusPaid              ProviderStatus = "paid"
	ProviderStatusUnpaid            ProviderStatus = "unpaid"
	ProviderStatusNoPaymentRequired ProviderStatus = "no_payment_required"
)

// PaymentOutcome is the internal tri-state derived from a status query.
type PaymentOutcome string

const (
	OutcomeConfirmedPaid   PaymentOutcome = "confirmed_paid"
	OutcomeConfirmedUnpaid PaymentOutcome = "confirmed_unpaid"
	OutcomeUnknown         PaymentOutcome = "unknown"
)

// PaymentStatusReport is what the provider returns for a session lookup.
type PaymentStatusReport struct {
	SessionID     string         `json:"session_id"`
	Status        ProviderStatus `json:"status"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	CustomerEmail string         `json:"customer_email,omitempty"`
}

// Outcome folds the provider vocabulary into the internal tri-state.
func (r *PaymentStatusReport) Outcome() PaymentOutcome {
	if r == nil {
		return OutcomeUnknown
	}
	switch r.Status {
	case ProviderStatusPaid, ProviderStatusNoPaymentRequired:
		return OutcomeConfirmedPaid
	case ProviderStatusUnpaid:
		return OutcomeConfirmedUnpaid
	default:
		return OutcomeUnknown
	}
}

// Verification records how a finalize was justified.
type Verification string

const (
	// VerificationProvider means the provider reported the session as paid.
	VerificationProvider Verification = "verified"
	// VerificationAsserted means the order was created on the customer's word
	// after the provider could not be reached.
	VerificationAsserted Verification = "asserted"
)
