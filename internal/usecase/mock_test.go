//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/adapter"
	"momo-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

var wat = time.FixedZone("WAT", 60*60)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	cp.Metadata = make(map[string]interface{}, len(p.Metadata))
	for k, v := range p.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock PaymentRepository ----

// MockPaymentRepo keeps payments in memory and emulates the conditional write.
type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payment // by transaction id

	SaveFunc             func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	TransitionStatusFunc func(ctx context.Context, tx repository.Tx, transactionID string, to model.PaymentStatus) (bool, error)
	FindCalls            int
	MarkCheckedCalls     int
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}}
}

func (r *MockPaymentRepo) Seed(p *model.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Metadata == nil {
		p.Metadata = map[string]interface{}{}
	}
	r.data[p.TransactionID] = clonePayment(p)
}

func (r *MockPaymentRepo) Get(transactionID string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[transactionID]; ok {
		return clonePayment(p)
	}
	return nil
}

func (r *MockPaymentRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *MockPaymentRepo) snapshot() map[string]*model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*model.Payment, len(r.data))
	for k, v := range r.data {
		out[k] = clonePayment(v)
	}
	return out
}

func (r *MockPaymentRepo) restore(s map[string]*model.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = s
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.data[p.TransactionID]; dup {
		return domain.ErrAlreadyExists
	}
	r.data[p.TransactionID] = clonePayment(p)
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.ID == id {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FindCalls++
	if p, ok := r.data[transactionID]; ok {
		return clonePayment(p), nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.UserID == userID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) ListStale(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if !p.IsTerminal() && p.UpdatedAt.Before(olderThan) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) TransitionStatus(ctx context.Context, tx repository.Tx, transactionID string, to model.PaymentStatus, from []model.PaymentStatus, meta map[string]interface{}) (bool, error) {
	if r.TransitionStatusFunc != nil {
		return r.TransitionStatusFunc(ctx, tx, transactionID, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[transactionID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if p.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	p.Status = to
	for k, v := range meta {
		p.Metadata[k] = v
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockPaymentRepo) MergeMetadata(ctx context.Context, tx repository.Tx, transactionID string, meta map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range meta {
		p.Metadata[k] = v
	}
	return nil
}

func (r *MockPaymentRepo) MarkChecked(ctx context.Context, tx repository.Tx, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.MarkCheckedCalls++
	if p, ok := r.data[transactionID]; ok && !p.IsTerminal() {
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MockPaymentRepo) SetSubscriptionDates(ctx context.Context, tx repository.Tx, transactionID string, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionStartDate, p.SubscriptionEndDate = &start, &end
	return nil
}

func (r *MockPaymentRepo) SumCompletedSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, p := range r.data {
		if p.Status == model.PaymentStatusCompleted && !p.UpdatedAt.Before(since) {
			sum += p.Amount
		}
	}
	return sum, nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	data map[string]*model.User

	UpdateSubscriptionFunc func(ctx context.Context, tx repository.Tx, userID string, level model.SubscriptionLevel, endDate *time.Time) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{data: map[string]*model.User{}}
}

func (r *MockUserRepo) Get(id string) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.data[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (r *MockUserRepo) snapshot() map[string]*model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*model.User, len(r.data))
	for k, v := range r.data {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (r *MockUserRepo) restore(s map[string]*model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = s
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.data[u.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.data[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, level model.SubscriptionLevel, endDate *time.Time) error {
	if r.UpdateSubscriptionFunc != nil {
		return r.UpdateSubscriptionFunc(ctx, tx, userID, level, endDate)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.data[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.SubscriptionLevel = level
	if endDate != nil {
		d := *endDate
		u.SubscriptionEndDate = &d
	} else {
		u.SubscriptionEndDate = nil
	}
	return nil
}

func (r *MockUserRepo) DowngradeExpired(ctx context.Context, tx repository.Tx, today time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.data {
		if u.IsPro() && u.SubscriptionEndDate != nil && u.SubscriptionEndDate.Before(today) {
			u.SubscriptionLevel = model.SubscriptionLevelFree
			n++
		}
	}
	return n, nil
}

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu   sync.Mutex
	rows []*model.Transaction

	SaveFunc func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo { return &MockTransactionRepo{} }

func (r *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.PaymentID != nil && t.PaymentID != nil && *existing.PaymentID == *t.PaymentID {
			return nil
		}
	}
	cp := *t
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *MockTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, t := range r.rows {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockTransactionRepo) Rows() []*model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Transaction(nil), r.rows...)
}

// ---- Mock TransactionManager ----

// MockTxManager serializes transactions and restores repository state when fn fails,
// which is enough to observe rollback behaviour.
type MockTxManager struct {
	mu       sync.Mutex
	payments *MockPaymentRepo
	users    *MockUserRepo

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(payments *MockPaymentRepo, users *MockUserRepo) *MockTxManager {
	return &MockTxManager{payments: payments, users: users}
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, us := m.payments.snapshot(), m.users.snapshot()
	if err := fn(ctx, repository.NoTX); err != nil {
		m.payments.restore(ps)
		m.users.restore(us)
		return err
	}
	return nil
}

// ---- Mock DepositGateway ----

type MockGateway struct {
	mu          sync.Mutex
	CreateCalls int
	GetCalls    int
	LastRequest adapter.DepositRequest

	CreateDepositFunc func(ctx context.Context, req adapter.DepositRequest) (*adapter.DepositResponse, error)
	GetDepositFunc    func(ctx context.Context, depositID string) (*adapter.DepositStatus, error)
}

var _ adapter.DepositGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateDeposit(ctx context.Context, req adapter.DepositRequest) (*adapter.DepositResponse, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.LastRequest = req
	m.mu.Unlock()
	if m.CreateDepositFunc != nil {
		return m.CreateDepositFunc(ctx, req)
	}
	return &adapter.DepositResponse{DepositID: req.DepositID, Status: model.ProviderAccepted, Raw: map[string]interface{}{"status": "ACCEPTED"}}, nil
}

func (m *MockGateway) GetDeposit(ctx context.Context, depositID string) (*adapter.DepositStatus, error) {
	m.mu.Lock()
	m.GetCalls++
	m.mu.Unlock()
	if m.GetDepositFunc != nil {
		return m.GetDepositFunc(ctx, depositID)
	}
	return nil, domain.ErrNotFound
}

// statusReply builds a GetDepositFunc that always answers with status.
func statusReply(status, reason string) func(ctx context.Context, depositID string) (*adapter.DepositStatus, error) {
	return func(ctx context.Context, depositID string) (*adapter.DepositStatus, error) {
		return &adapter.DepositStatus{
			DepositID:        depositID,
			Status:           status,
			DepositedAmount:  "2000",
			RejectionReason:  reason,
			CorrespondentIDs: map[string]string{"MTN_INIT": "ABC123"},
			Raw:              map[string]interface{}{"depositId": depositID, "status": status},
		}, nil
	}
}

// ---- Mock PaymentCache ----

type MockPaymentCache struct {
	mu   sync.Mutex
	data map[string]*model.Payment
}

var _ repository.PaymentCache = (*MockPaymentCache)(nil)

func NewMockPaymentCache() *MockPaymentCache {
	return &MockPaymentCache{data: map[string]*model.Payment{}}
}

func (c *MockPaymentCache) Get(ctx context.Context, transactionID string) (*model.Payment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.data[transactionID]; ok {
		return clonePayment(p), nil
	}
	return nil, domain.ErrNotFound
}

func (c *MockPaymentCache) Put(ctx context.Context, p *model.Payment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[p.TransactionID] = clonePayment(p)
	return nil
}

// ---- Mock ErrorReporter ----

type MockReporter struct {
	mu     sync.Mutex
	Errors []error
	Tags   []map[string]string
}

func (r *MockReporter) Report(ctx context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
	r.Tags = append(r.Tags, tags)
}

var errDB = errors.New("connection reset by peer")
