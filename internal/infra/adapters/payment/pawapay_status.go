package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"momo-billing/internal/domain"
	"momo-billing/internal/domain/ports/adapter"
)

// flexString accepts a JSON string or number ("2000" and 2000 both decode to "2000").
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type depositWire struct {
	DepositID           string                 `json:"depositId"`
	Status              string                 `json:"status"`
	RequestedAmount     flexString             `json:"requestedAmount"`
	DepositedAmount     flexString             `json:"depositedAmount"`
	Currency            string                 `json:"currency"`
	Correspondent       string                 `json:"correspondent"`
	CorrespondentIDs    map[string]interface{} `json:"correspondentIds"`
	RejectionReason     json.RawMessage        `json:"rejectionReason"`
	FailureReason       json.RawMessage        `json:"failureReason"`
	ReceivedByRecipient string                 `json:"receivedByRecipient"`
}

// ParseDepositStatus normalizes every shape the provider uses for a deposit status
// into one canonical value: a bare object (callbacks), a single-element array
// (status query), or a {"status":"FOUND","data":{...}} envelope. An empty array or a
// NOT_FOUND envelope yields domain.ErrNotFound.
func ParseDepositStatus(body []byte) (*adapter.DepositStatus, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty deposit payload", domain.ErrInvalidArgument)
	}

	var obj json.RawMessage
	switch body[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, fmt.Errorf("%w: decode deposit array: %v", domain.ErrInvalidArgument, err)
		}
		if len(arr) == 0 {
			return nil, domain.ErrNotFound
		}
		obj = arr[0]
	case '{':
		obj = body
	default:
		return nil, fmt.Errorf("%w: unexpected deposit payload", domain.ErrInvalidArgument)
	}

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(obj, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode deposit: %v", domain.ErrInvalidArgument, err)
	}
	switch strings.ToUpper(envelope.Status) {
	case "NOT_FOUND":
		return nil, domain.ErrNotFound
	case "FOUND":
		if len(envelope.Data) == 0 {
			return nil, domain.ErrNotFound
		}
		return ParseDepositStatus(envelope.Data)
	}

	var w depositWire
	if err := json.Unmarshal(obj, &w); err != nil {
		return nil, fmt.Errorf("%w: decode deposit: %v", domain.ErrInvalidArgument, err)
	}
	if w.DepositID == "" || w.Status == "" {
		return nil, fmt.Errorf("%w: deposit payload missing depositId or status", domain.ErrInvalidArgument)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(obj, &raw)

	st := &adapter.DepositStatus{
		DepositID:       w.DepositID,
		Status:          strings.ToUpper(strings.TrimSpace(w.Status)),
		RequestedAmount: string(w.RequestedAmount),
		DepositedAmount: string(w.DepositedAmount),
		Currency:        w.Currency,
		Correspondent:   w.Correspondent,
		RejectionReason: reasonText(w.RejectionReason),
		Raw:             raw,
	}
	if st.RejectionReason == "" {
		st.RejectionReason = reasonText(w.FailureReason)
	}
	if len(w.CorrespondentIDs) > 0 {
		st.CorrespondentIDs = make(map[string]string, len(w.CorrespondentIDs))
		for k, v := range w.CorrespondentIDs {
			st.CorrespondentIDs[k] = fmt.Sprint(v)
		}
	}
	if w.ReceivedByRecipient != "" {
		if t, err := time.Parse(time.RFC3339, w.ReceivedByRecipient); err == nil {
			st.ReceivedAt = &t
		}
	}
	return st, nil
}

// reasonText flattens a reason given as a plain string or as
// {"rejectionCode"/"failureCode", "rejectionMessage"/"failureMessage"}.
func reasonText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	code := firstString(obj, "rejectionCode", "failureCode", "code")
	msg := firstString(obj, "rejectionMessage", "failureMessage", "message")
	switch {
	case code != "" && msg != "":
		return code + ": " + msg
	case code != "":
		return code
	default:
		return msg
	}
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
