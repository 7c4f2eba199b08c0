// Command paycheck starts a deposit against a running service and polls it until it
// reaches a final outcome. Ctrl-C stops polling without touching the payment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"momo-billing/internal/config"
	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/infra/api"
	"momo-billing/internal/infra/logging"
	"momo-billing/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode")
	baseURL := flag.String("url", "http://localhost:8080", "service base URL")
	userID := flag.String("user", "", "user id to charge (token subject)")
	phone := flag.String("phone", "", "payer phone number")
	amount := flag.Int64("amount", 0, "amount in XAF (defaults to the plan price)")
	extension := flag.Bool("extension", false, "extend the current subscription instead of replacing it")
	depositID := flag.String("deposit", "", "poll an existing deposit instead of starting one")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if *userID == "" {
		logger.Fatal().Msg("-user is required")
	}

	tok, err := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Audience).Mint(*userID, "authenticated", time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	c := &client{base: strings.TrimRight(*baseURL, "/"), token: tok, http: &http.Client{Timeout: 20 * time.Second}}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := *depositID
	if id == "" {
		id, err = c.initiate(ctx, *phone, *amount, *extension)
		if err != nil {
			logger.Fatal().Err(err).Msg("initiate deposit")
		}
		fmt.Printf("deposit %s started; confirm the payment on %s\n", id, logging.Redact(*phone, cfg.Runtime.Dev))
	}

	poller := usecase.NewStatusPoller(c, cfg.Polling.Interval, cfg.Polling.MaxAttempts, logger)
	var last model.PaymentStatus
	poller.OnUpdate = func(r *usecase.StatusResult) {
		if r.Status != last {
			fmt.Printf("  %s: %s\n", r.Status, r.Message)
			last = r.Status
		}
	}
	out := poller.Poll(ctx, *userID, id)
	fmt.Printf("%s after %d checks: %s\n", out.Kind, out.Attempts, out.Message)
	if out.Kind != usecase.OutcomeCompleted {
		os.Exit(1)
	}
}

// client talks to the public API and satisfies usecase.StatusChecker.
type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) initiate(ctx context.Context, phone string, amount int64, ext bool) (string, error) {
	req := map[string]interface{}{"phoneNumber": phone, "isExtension": ext}
	if amount > 0 {
		req["amount"] = amount
	}
	body, _ := json.Marshal(req)
	var out struct {
		DepositID string `json:"depositId"`
		Error     string `json:"error"`
	}
	code, err := c.do(ctx, http.MethodPost, "/api/v1/deposits", body, &out)
	if err != nil {
		return "", err
	}
	if code != http.StatusCreated {
		return out.DepositID, fmt.Errorf("initiate: http %d: %s", code, out.Error)
	}
	return out.DepositID, nil
}

func (c *client) CheckStatus(ctx context.Context, _ string, depositID string) (*usecase.StatusResult, error) {
	var out struct {
		DepositID        string            `json:"depositId"`
		Status           string            `json:"status"`
		Message          string            `json:"message"`
		CorrespondentIDs map[string]string `json:"correspondentIds"`
		RejectionReason  string            `json:"rejectionReason"`
		Error            string            `json:"error"`
	}
	code, err := c.do(ctx, http.MethodGet, "/api/v1/deposits/"+depositID+"/status", nil, &out)
	if err != nil {
		return nil, &domain.ProviderError{Op: "get_deposit", Err: err}
	}
	switch {
	case code == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case code == http.StatusBadRequest:
		return nil, domain.NewValidationError("depositId", out.Error)
	case code != http.StatusOK:
		return nil, &domain.ProviderError{Op: "get_deposit", Err: fmt.Errorf("http %d: %s", code, out.Error)}
	}
	return &usecase.StatusResult{
		DepositID:        out.DepositID,
		Status:           model.PaymentStatus(out.Status),
		Message:          out.Message,
		CorrespondentIDs: out.CorrespondentIDs,
		RejectionReason:  out.RejectionReason,
	}, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_ = json.NewDecoder(resp.Body).Decode(out)
	return resp.StatusCode, nil
}
