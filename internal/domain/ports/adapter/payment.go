package adapter

import (
	"context"
	"time"
)

// DepositRequest is what we send to the provider to start a mobile-money charge.
type DepositRequest struct {
	DepositID            string // caller-assigned UUIDv4
	Amount               int64
	Currency             string
	Correspondent        string
	PayerMSISDN          string
	StatementDescription string
	Metadata             map[string]string
}

// DepositResponse is the provider's immediate answer to a deposit request.
type DepositResponse struct {
	DepositID       string
	Status          string // ACCEPTED | REJECTED | DUPLICATE_IGNORED
	RejectionReason string
	Raw             map[string]interface{}
}

// DepositStatus is the canonical status of a deposit, whatever shape the provider
// used on the wire (webhook body, single object, or single-element array).
type DepositStatus struct {
	DepositID        string
	Status           string
	RequestedAmount  string
	DepositedAmount  string
	Currency         string
	Correspondent    string
	CorrespondentIDs map[string]string
	RejectionReason  string
	ReceivedAt       *time.Time
	Raw              map[string]interface{}
}

// DepositGateway is the hex port for the mobile-money provider.
type DepositGateway interface {
	Name() string
	// CreateDeposit asks the provider to charge the payer.
	CreateDeposit(ctx context.Context, req DepositRequest) (*DepositResponse, error)
	// GetDeposit returns the current provider view of a deposit; domain.ErrNotFound when unknown.
	GetDeposit(ctx context.Context, depositID string) (*DepositStatus, error)
}
