package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/infra/adapters/payment"
	"momo-billing/internal/infra/logging"
	"momo-billing/internal/infra/metrics"
	redisinfra "momo-billing/internal/infra/redis"
	"momo-billing/internal/usecase"
)

const (
	signatureHeader = "X-Callback-Signature"
	maxBodyBytes    = 1 << 20
)

type initiateRequest struct {
	// Amount is optional; omitted means the plan price.
	Amount        *int64 `json:"amount"`
	PhoneNumber   string `json:"phoneNumber"`
	Correspondent string `json:"correspondent"`
	PlanID        string `json:"planId"`
	Description   string `json:"description"`
	IsExtension   bool   `json:"isExtension"`
}

type depositResponse struct {
	DepositID string `json:"depositId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type statusResponse struct {
	DepositID        string            `json:"depositId"`
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	CorrespondentIDs map[string]string `json:"correspondentIds,omitempty"`
	RejectionReason  string            `json:"rejectionReason,omitempty"`
}

type paymentView struct {
	DepositID             string     `json:"depositId"`
	Amount                int64      `json:"amount"`
	Currency              string     `json:"currency"`
	Status                string     `json:"status"`
	PlanID                string     `json:"planId"`
	IsExtension           bool       `json:"isExtension"`
	RejectionReason       string     `json:"rejectionReason,omitempty"`
	SubscriptionStartDate *time.Time `json:"subscriptionStartDate,omitempty"`
	SubscriptionEndDate   *time.Time `json:"subscriptionEndDate,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
}

func toPaymentView(p *model.Payment) paymentView {
	return paymentView{
		DepositID:             p.TransactionID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		Status:                string(p.Status),
		PlanID:                p.PlanID,
		IsExtension:           p.IsExtension(),
		RejectionReason:       p.RejectionReason(),
		SubscriptionStartDate: p.SubscriptionStartDate,
		SubscriptionEndDate:   p.SubscriptionEndDate,
		CreatedAt:             p.CreatedAt,
	}
}

// handleDepositCallback is the provider push path. Unknown deposits answer 200 so
// the provider stops retrying; database failures answer 500 so it retries.
func (s *Server) handleDepositCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		metrics.IncWebhook("bad_request")
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if s.opts.CallbackSecret != "" && !payment.VerifyCallbackSignature(s.opts.CallbackSecret, body, r.Header.Get(signatureHeader)) {
		metrics.IncWebhook("bad_signature")
		writeError(w, http.StatusUnauthorized, domain.ErrInvalidSignature.Error())
		return
	}

	st, err := payment.ParseDepositStatus(body)
	if err != nil {
		metrics.IncWebhook("bad_request")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := logging.WithDepositID(r.Context(), st.DepositID)
	log := logging.With(ctx, s.log)
	p, err := s.payUC.HandleCallback(ctx, st)
	switch {
	case err == nil:
		metrics.IncWebhook("ok")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "paymentStatus": string(p.Status)})
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncWebhook("ignored")
		log.Warn().Str("provider_status", st.Status).Msg("callback for unknown deposit ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		metrics.IncWebhook("error")
		s.writeUseCaseError(w, r, err)
	}
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	if !s.allow(r.Context(), redisinfra.InitiateKey(userID), s.opts.InitiateLimit, s.opts.InitiateWindow) {
		writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
		return
	}

	var req initiateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount := s.opts.DefaultAmount
	if req.Amount != nil {
		if *req.Amount <= 0 {
			s.writeUseCaseError(w, r, domain.NewValidationError("amount", "must be a positive number"))
			return
		}
		amount = *req.Amount
	}

	p, err := s.payUC.Initiate(r.Context(), usecase.InitiateDepositInput{
		UserID:        userID,
		Amount:        amount,
		PhoneNumber:   req.PhoneNumber,
		Correspondent: req.Correspondent,
		PlanID:        req.PlanID,
		Description:   req.Description,
		IsExtension:   req.IsExtension,
	})
	if err != nil {
		var pe *domain.ProviderError
		if p != nil && errors.As(err, &pe) {
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":     s.translator(r).T("deposit.provider_refused"),
				"depositId": p.TransactionID,
				"detail":    pe.Error(),
			})
			return
		}
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, depositResponse{
		DepositID: p.TransactionID,
		Status:    string(p.Status),
		Message:   s.translator(r).StatusMessage(p.Status, ""),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := logging.UserIDFrom(r.Context())
	if !s.allow(r.Context(), redisinfra.StatusPollKey(userID), s.opts.PollLimit, s.opts.PollWindow) {
		writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
		return
	}
	res, err := s.payUC.CheckStatus(r.Context(), userID, chi.URLParam(r, "depositId"))
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		DepositID:        res.DepositID,
		Status:           string(res.Status),
		Message:          s.translator(r).StatusMessage(res.Status, res.RejectionReason),
		CorrespondentIDs: res.CorrespondentIDs,
		RejectionReason:  res.RejectionReason,
	})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.payUC.ListPayments(r.Context(), logging.UserIDFrom(r.Context()), limit)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	out := make([]paymentView, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentView(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": out})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	v, err := s.subUC.GetSubscription(r.Context(), logging.UserIDFrom(r.Context()))
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	resp := map[string]interface{}{"level": string(v.Level), "active": v.Active}
	if v.EndDate != nil {
		resp["endDate"] = v.EndDate.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-s.opts.RevenueLookback)
	if q := strings.TrimSpace(r.URL.Query().Get("since")); q != "" {
		t, err := parseSince(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339 or YYYY-MM-DD")
			return
		}
		since = t
	}
	sum, err := s.payUC.RevenueSince(r.Context(), since)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"since": since.Format(time.RFC3339), "total": sum})
}

func parseSince(q string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, q); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", q)
}
