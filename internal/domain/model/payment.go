package model

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // row created, provider has not accepted yet
	PaymentStatusProcessing PaymentStatus = "processing" // provider accepted, payer has not confirmed
	PaymentStatusCompleted  PaymentStatus = "completed"  // funds collected; subscription granted
	PaymentStatusFailed     PaymentStatus = "failed"     // provider reported FAILED or REJECTED
)

// Metadata keys written on payments.metadata.
const (
	MetaIsExtension        = "is_extension"
	MetaCorrespondent      = "correspondent"
	MetaPhone              = "phone"
	MetaInitiationResponse = "initiation_response"
	MetaInitiationError    = "initiation_error"
	MetaRejectionReason    = "rejection_reason"
	MetaProviderPayload    = "provider_payload"
	MetaCompletedBy        = "completed_by"
)

const DefaultPlanID = "pro"

// Payment mirrors a row of the payments table.
type Payment struct {
	ID            string // UUID, server assigned
	UserID        string // owning user
	TransactionID string // provider depositId, unique; idempotency key for status updates
	Amount        int64  // whole currency units (XAF has no minor unit)
	Currency      string
	Status        PaymentStatus
	PlanID        string
	Metadata      map[string]interface{} // is_extension flag + raw provider payloads
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Set only when the payment becomes completed.
	SubscriptionStartDate *time.Time
	SubscriptionEndDate   *time.Time
}

func (p *Payment) IsTerminal() bool { return p != nil && p.Status.IsTerminal() }

// IsExtension reads the is_extension flag from metadata; anything but a true bool is false.
func (p *Payment) IsExtension() bool {
	if p == nil || p.Metadata == nil {
		return false
	}
	v, _ := p.Metadata[MetaIsExtension].(bool)
	return v
}

func (p *Payment) RejectionReason() string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	s, _ := p.Metadata[MetaRejectionReason].(string)
	return s
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// Provider status vocabulary.
const (
	ProviderAccepted  = "ACCEPTED"
	ProviderCompleted = "COMPLETED"
	ProviderFailed    = "FAILED"
	ProviderRejected  = "REJECTED"
)

// MapProviderStatus translates a provider status into the local vocabulary.
// ok is false for anything outside the fixed table; callers must then leave the
// stored status untouched.
func MapProviderStatus(providerStatus string) (PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(providerStatus)) {
	case ProviderAccepted:
		return PaymentStatusProcessing, true
	case ProviderCompleted:
		return PaymentStatusCompleted, true
	case ProviderFailed, ProviderRejected:
		return PaymentStatusFailed, true
	default:
		return "", false
	}
}

// CanTransition reports whether from -> to is a forward move of the payment state machine.
// pending -> processing -> {completed, failed}; pending may jump straight to a terminal state.
func CanTransition(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusProcessing || to == PaymentStatusCompleted || to == PaymentStatusFailed
	case PaymentStatusProcessing:
		return to == PaymentStatusCompleted || to == PaymentStatusFailed
	default:
		return false
	}
}

// Predecessors lists the statuses a payment may be in for a conditional write to `to`.
func Predecessors(to PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for _, from := range []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
