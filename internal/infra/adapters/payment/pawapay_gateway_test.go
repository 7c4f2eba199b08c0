//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/ports/adapter"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) (*PawaPayGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	gw, err := NewPawaPayGateway(srv.URL, "test-token", 2*time.Second)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw, srv
}

func TestNewPawaPayGateway_Validation(t *testing.T) {
	if _, err := NewPawaPayGateway("https://api.pawapay.io", "", 0); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewPawaPayGateway("not a url", "tok", 0); err == nil {
		t.Error("expected error for invalid base url")
	}
}

func TestPawaPayGateway_CreateDeposit(t *testing.T) {
	req := adapter.DepositRequest{
		DepositID:            "0f9d7a5e-3c1b-4a6e-9b7d-1e2f3a4b5c6d",
		Amount:               2000,
		Currency:             "XAF",
		Correspondent:        "MTN_MOMO_CMR",
		PayerMSISDN:          "237677123456",
		StatementDescription: "Pro plan: subscription!",
	}

	t.Run("should send the deposit and return ACCEPTED", func(t *testing.T) {
		var got map[string]any
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/deposits" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("missing bearer token")
			}
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &got)
			_, _ = w.Write([]byte(`{"depositId":"0f9d7a5e-3c1b-4a6e-9b7d-1e2f3a4b5c6d","status":"ACCEPTED","created":"2025-01-05T10:00:00Z"}`))
		})

		resp, err := gw.CreateDeposit(context.Background(), req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.Status != "ACCEPTED" {
			t.Errorf("expected ACCEPTED, got %s", resp.Status)
		}
		if got["amount"] != "2000" {
			t.Errorf("amount must be sent as a string, got %v", got["amount"])
		}
		payer, _ := got["payer"].(map[string]any)
		addr, _ := payer["address"].(map[string]any)
		if payer["type"] != "MSISDN" || addr["value"] != "237677123456" {
			t.Errorf("unexpected payer %v", got["payer"])
		}
		if desc, _ := got["statementDescription"].(string); desc != "Pro plan subscription" {
			t.Errorf("statement description should be sanitized, got %q", desc)
		}
	})

	t.Run("should surface a rejection as a response", func(t *testing.T) {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"depositId":"x","status":"REJECTED","rejectionReason":{"rejectionCode":"INVALID_PAYER_FORMAT","rejectionMessage":"bad msisdn"}}`))
		})
		resp, err := gw.CreateDeposit(context.Background(), req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.Status != "REJECTED" || resp.RejectionReason != "INVALID_PAYER_FORMAT: bad msisdn" {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("should map 5xx to an unavailable provider error", func(t *testing.T) {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := gw.CreateDeposit(context.Background(), req)
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("expected unavailable ProviderError, got %v", err)
		}
	})

	t.Run("should map 4xx to a provider error", func(t *testing.T) {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errorMessage":"bad"}`))
		})
		_, err := gw.CreateDeposit(context.Background(), req)
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProviderError, got %v", err)
		}
		if errors.Is(err, domain.ErrProviderUnavailable) {
			t.Error("a 4xx is not an availability problem")
		}
	})

	t.Run("should map transport errors to an unavailable provider error", func(t *testing.T) {
		gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()
		_, err := gw.CreateDeposit(context.Background(), req)
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}

func TestPawaPayGateway_GetDeposit(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"array", `[{"depositId":"dep-1","status":"COMPLETED","requestedAmount":"2000","depositedAmount":"2000","currency":"XAF","correspondent":"MTN_MOMO_CMR","correspondentIds":{"MTN_INIT":"ABC123"}}]`},
		{"object", `{"depositId":"dep-1","status":"COMPLETED","requestedAmount":2000,"depositedAmount":"2000","currency":"XAF","correspondent":"MTN_MOMO_CMR","correspondentIds":{"MTN_INIT":"ABC123"}}`},
		{"envelope", `{"status":"FOUND","data":{"depositId":"dep-1","status":"COMPLETED","requestedAmount":"2000","depositedAmount":"2000","currency":"XAF","correspondent":"MTN_MOMO_CMR","correspondentIds":{"MTN_INIT":"ABC123"}}}`},
	}
	for _, tc := range cases {
		t.Run("should normalize "+tc.name, func(t *testing.T) {
			gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/deposits/dep-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			})
			st, err := gw.GetDeposit(context.Background(), "dep-1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if st.DepositID != "dep-1" || st.Status != "COMPLETED" || st.RequestedAmount != "2000" {
				t.Errorf("unexpected status %+v", st)
			}
			if st.CorrespondentIDs["MTN_INIT"] != "ABC123" {
				t.Errorf("expected correspondent ids, got %v", st.CorrespondentIDs)
			}
		})
	}

	t.Run("should return ErrNotFound for an empty array", func(t *testing.T) {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
		if _, err := gw.GetDeposit(context.Background(), "dep-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should return a provider error for garbage", func(t *testing.T) {
		gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		})
		_, err := gw.GetDeposit(context.Background(), "dep-1")
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProviderError, got %v", err)
		}
	})
}

func TestParseDepositStatus(t *testing.T) {
	t.Run("failure reason object is flattened", func(t *testing.T) {
		st, err := ParseDepositStatus([]byte(`{"depositId":"d","status":"failed","failureReason":{"failureCode":"PAYER_NOT_FOUND","failureMessage":"no wallet"}}`))
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if st.Status != "FAILED" {
			t.Errorf("status should be upper-cased, got %s", st.Status)
		}
		if st.RejectionReason != "PAYER_NOT_FOUND: no wallet" {
			t.Errorf("unexpected reason %q", st.RejectionReason)
		}
	})

	t.Run("string rejection reason is kept", func(t *testing.T) {
		st, err := ParseDepositStatus([]byte(`{"depositId":"d","status":"REJECTED","rejectionReason":"PAYER_LIMIT_REACHED"}`))
		if err != nil || st.RejectionReason != "PAYER_LIMIT_REACHED" {
			t.Fatalf("unexpected (%+v, %v)", st, err)
		}
	})

	t.Run("received timestamp is parsed", func(t *testing.T) {
		st, err := ParseDepositStatus([]byte(`{"depositId":"d","status":"COMPLETED","receivedByRecipient":"2025-01-05T10:00:00Z"}`))
		if err != nil || st.ReceivedAt == nil || st.ReceivedAt.Year() != 2025 {
			t.Fatalf("unexpected (%+v, %v)", st, err)
		}
	})

	for name, body := range map[string]string{
		"empty":          ``,
		"missing status": `{"depositId":"d"}`,
		"scalar":         `"COMPLETED"`,
	} {
		t.Run("rejects "+name, func(t *testing.T) {
			if _, err := ParseDepositStatus([]byte(body)); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	t.Run("not found envelope", func(t *testing.T) {
		if _, err := ParseDepositStatus([]byte(`{"status":"NOT_FOUND"}`)); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStatementDescription(t *testing.T) {
	if got := statementDescription("ab"); got != "Subscription" {
		t.Errorf("too short descriptions fall back, got %q", got)
	}
	long := strings.Repeat("x", 40)
	if got := statementDescription(long); len(got) != 22 {
		t.Errorf("expected 22 chars, got %d", len(got))
	}
}

func TestCallbackSignature(t *testing.T) {
	body := []byte(`{"depositId":"d","status":"COMPLETED"}`)
	sig := SignCallback("s3cret", body)

	if !VerifyCallbackSignature("s3cret", body, sig) {
		t.Error("expected signature to verify")
	}
	if !VerifyCallbackSignature("s3cret", body, "sha256="+strings.ToUpper(sig)) {
		t.Error("expected prefixed, upper-case signature to verify")
	}
	if VerifyCallbackSignature("other", body, sig) {
		t.Error("wrong secret must not verify")
	}
	if VerifyCallbackSignature("s3cret", append(body, ' '), sig) {
		t.Error("modified body must not verify")
	}
	if VerifyCallbackSignature("", body, sig) {
		t.Error("empty secret must not verify")
	}
}

func TestSandboxGateway(t *testing.T) {
	ctx := context.Background()
	gw := NewSandboxGateway(2)

	resp, err := gw.CreateDeposit(ctx, adapter.DepositRequest{DepositID: "dep-1", Amount: 2000, PayerMSISDN: "237677123456"})
	if err != nil || resp.Status != "ACCEPTED" {
		t.Fatalf("unexpected (%+v, %v)", resp, err)
	}
	if resp, _ := gw.CreateDeposit(ctx, adapter.DepositRequest{DepositID: "dep-1"}); resp.Status != "DUPLICATE_IGNORED" {
		t.Errorf("expected duplicate to be ignored, got %s", resp.Status)
	}

	st, _ := gw.GetDeposit(ctx, "dep-1")
	if st.Status != "ACCEPTED" {
		t.Errorf("first poll should still be ACCEPTED, got %s", st.Status)
	}
	st, _ = gw.GetDeposit(ctx, "dep-1")
	if st.Status != "COMPLETED" || st.DepositedAmount != "2000" {
		t.Errorf("second poll should complete, got %+v", st)
	}

	_, _ = gw.CreateDeposit(ctx, adapter.DepositRequest{DepositID: "dep-2", Amount: 2000, PayerMSISDN: "237677123499"})
	gw.GetDeposit(ctx, "dep-2")
	st, _ = gw.GetDeposit(ctx, "dep-2")
	if st.Status != "FAILED" || st.RejectionReason == "" {
		t.Errorf("payer ending in 99 should fail with a reason, got %+v", st)
	}

	if _, err := gw.GetDeposit(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	gw.Unavailable = true
	if _, err := gw.GetDeposit(ctx, "dep-1"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}
