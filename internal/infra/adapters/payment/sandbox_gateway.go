package payment

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/adapter"
)

var _ adapter.DepositGateway = (*SandboxGateway)(nil)

type sandboxDeposit struct {
	req    adapter.DepositRequest
	status string
	reason string
	polls  int
}

// SandboxGateway is an in-memory provider for dev mode and tests. Deposits are
// ACCEPTED, then report COMPLETED once they have been queried completeAfter times.
// Payers whose number ends in "99" are rejected by the operator instead.
type SandboxGateway struct {
	mu            sync.Mutex
	deposits      map[string]*sandboxDeposit
	completeAfter int

	// Unavailable makes every call fail as if the provider were unreachable.
	Unavailable bool
}

func NewSandboxGateway(completeAfter int) *SandboxGateway {
	if completeAfter < 0 {
		completeAfter = 0
	}
	return &SandboxGateway{deposits: make(map[string]*sandboxDeposit), completeAfter: completeAfter}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) CreateDeposit(ctx context.Context, req adapter.DepositRequest) (*adapter.DepositResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Unavailable {
		return nil, &domain.ProviderError{Op: "create_deposit", Err: domain.ErrProviderUnavailable}
	}
	if _, dup := g.deposits[req.DepositID]; dup {
		return &adapter.DepositResponse{DepositID: req.DepositID, Status: "DUPLICATE_IGNORED"}, nil
	}
	g.deposits[req.DepositID] = &sandboxDeposit{req: req, status: model.ProviderAccepted}
	return &adapter.DepositResponse{
		DepositID: req.DepositID,
		Status:    model.ProviderAccepted,
		Raw:       map[string]interface{}{"depositId": req.DepositID, "status": model.ProviderAccepted},
	}, nil
}

func (g *SandboxGateway) GetDeposit(ctx context.Context, depositID string) (*adapter.DepositStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Unavailable {
		return nil, &domain.ProviderError{Op: "get_deposit", Err: domain.ErrProviderUnavailable}
	}
	d, ok := g.deposits[depositID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	d.polls++
	if d.status == model.ProviderAccepted && d.polls >= g.completeAfter {
		if strings.HasSuffix(d.req.PayerMSISDN, "99") {
			d.status, d.reason = model.ProviderFailed, "PAYER_LIMIT_REACHED"
		} else {
			d.status = model.ProviderCompleted
		}
	}
	return g.statusLocked(d), nil
}

// SetStatus forces the provider-side status of a deposit.
func (g *SandboxGateway) SetStatus(depositID, status, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d, ok := g.deposits[depositID]; ok {
		d.status, d.reason = status, reason
	}
}

// Callback renders the payload the provider would push for depositID.
func (g *SandboxGateway) Callback(depositID string) (*adapter.DepositStatus, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.deposits[depositID]
	if !ok {
		return nil, false
	}
	return g.statusLocked(d), true
}

func (g *SandboxGateway) statusLocked(d *sandboxDeposit) *adapter.DepositStatus {
	st := &adapter.DepositStatus{
		DepositID:       d.req.DepositID,
		Status:          d.status,
		RequestedAmount: formatAmount(d.req.Amount),
		Currency:        d.req.Currency,
		Correspondent:   d.req.Correspondent,
		RejectionReason: d.reason,
	}
	if d.status == model.ProviderCompleted {
		st.DepositedAmount = st.RequestedAmount
		st.CorrespondentIDs = map[string]string{"financialTransactionId": "sbx-" + shortID(d.req.DepositID)}
	}
	return st
}

func formatAmount(v int64) string { return strconv.FormatInt(v, 10) }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
