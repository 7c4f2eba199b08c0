// File: internal/infra/adapters/payment/pawapay_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/ports/adapter"
	"momo-billing/internal/infra/metrics"
)

var _ adapter.DepositGateway = (*PawaPayGateway)(nil)

// PawaPayGateway implements adapter.DepositGateway against the pawaPay REST API.
type PawaPayGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewPawaPayGateway(baseURL, apiToken string, timeout time.Duration) (*PawaPayGateway, error) {
	if apiToken == "" {
		return nil, errors.New("pawapay api token empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid pawapay base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PawaPayGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   apiToken,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *PawaPayGateway) Name() string { return "pawapay" }

type payerWire struct {
	Type    string `json:"type"`
	Address struct {
		Value string `json:"value"`
	} `json:"address"`
}

type metadataField struct {
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

// CreateDeposit calls POST /deposits. A provider answer other than ACCEPTED is
// returned as a response, not an error; the caller decides what it means.
func (g *PawaPayGateway) CreateDeposit(ctx context.Context, req adapter.DepositRequest) (*adapter.DepositResponse, error) {
	const op = "create_deposit"
	payer := payerWire{Type: "MSISDN"}
	payer.Address.Value = req.PayerMSISDN
	payload := map[string]any{
		"depositId":            req.DepositID,
		"amount":               strconv.FormatInt(req.Amount, 10),
		"currency":             req.Currency,
		"correspondent":        req.Correspondent,
		"payer":                payer,
		"customerTimestamp":    time.Now().UTC().Format(time.RFC3339),
		"statementDescription": statementDescription(req.StatementDescription),
	}
	if len(req.Metadata) > 0 {
		fields := make([]metadataField, 0, len(req.Metadata))
		for k, v := range req.Metadata {
			fields = append(fields, metadataField{FieldName: k, FieldValue: v})
		}
		payload["metadata"] = fields
	}

	body, status, err := g.do(ctx, op, http.MethodPost, "/deposits", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &domain.ProviderError{Op: op, Err: fmt.Errorf("http %d: %s", status, truncate(body, 256))}
	}

	var out struct {
		DepositID       string          `json:"depositId"`
		Status          string          `json:"status"`
		RejectionReason json.RawMessage `json:"rejectionReason"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &domain.ProviderError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)
	if out.DepositID == "" {
		out.DepositID = req.DepositID
	}
	return &adapter.DepositResponse{
		DepositID:       out.DepositID,
		Status:          strings.ToUpper(out.Status),
		RejectionReason: reasonText(out.RejectionReason),
		Raw:             raw,
	}, nil
}

// GetDeposit calls GET /deposits/{depositId}. The body may be an object or an array.
func (g *PawaPayGateway) GetDeposit(ctx context.Context, depositID string) (*adapter.DepositStatus, error) {
	const op = "get_deposit"
	body, status, err := g.do(ctx, op, http.MethodGet, "/deposits/"+url.PathEscape(depositID), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if status < 200 || status >= 300 {
		return nil, &domain.ProviderError{Op: op, Err: fmt.Errorf("http %d: %s", status, truncate(body, 256))}
	}
	st, err := ParseDepositStatus(body)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.ProviderError{Op: op, Err: err}
	}
	return st, nil
}

func (g *PawaPayGateway) do(ctx context.Context, op, method, path string, payload any) ([]byte, int, error) {
	var rdr io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rdr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveProvider(op, false, time.Since(start))
		return nil, 0, &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	ok := err == nil && resp.StatusCode < 500
	metrics.ObserveProvider(op, ok, time.Since(start))
	if err != nil {
		return nil, 0, &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: read body: %v", domain.ErrProviderUnavailable, err)}
	}
	if resp.StatusCode >= 500 {
		return nil, 0, &domain.ProviderError{Op: op, Err: fmt.Errorf("%w: http %d", domain.ErrProviderUnavailable, resp.StatusCode)}
	}
	return body, resp.StatusCode, nil
}

// statementDescription keeps the 4-22 alphanumeric/space characters the provider accepts.
func statementDescription(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > 22 {
		out = strings.TrimSpace(out[:22])
	}
	if len(out) < 4 {
		out = "Subscription"
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
