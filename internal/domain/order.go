package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Order error codes surfaced to clients.
const (
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeAccessBlocked      = "ACCESS_BLOCKED"
)

// FlexString decodes from either a JSON string or a JSON number. The user
// timestamp and nonce arrive in both forms.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// OrderRequest is a user-signed order to be forwarded to the CLOB with
// builder attribution. Order is forwarded verbatim.
type OrderRequest struct {
	Order         json.RawMessage `json:"order"`
	UserAddress   string          `json:"userAddress"`
	UserSignature string          `json:"userSignature,omitempty"`
	UserTimestamp FlexString      `json:"userTimestamp,omitempty"`
	UserNonce     FlexString      `json:"userNonce,omitempty"`
}

// HasOrder reports whether the request carries a non-empty order payload.
func (r OrderRequest) HasOrder() bool {
	trimmed := strings.TrimSpace(string(r.Order))
	switch trimmed {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

// SignRequest asks for builder headers over an arbitrary request.
type SignRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   string `json:"body"`
}

// OrderResult is a successful CLOB order placement. It marshals as
// {"success":true,"orderId":...} overlaid with every upstream field; orderId is
// omitted when the upstream reported none.
type OrderResult struct {
	OrderID  string
	Upstream map[string]any
}

func (r OrderResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Upstream)+2)
	out["success"] = true
	if r.OrderID != "" {
		out["orderId"] = r.OrderID
	}
	for k, v := range r.Upstream {
		out[k] = v
	}
	return json.Marshal(out)
}

// OrderError is a failed order placement or signing request. Status is the
// HTTP status to answer with; Code is set for the machine-readable cases.
type OrderError struct {
	Status         int
	Code           string
	Message        string
	UpstreamStatus int
	Err            error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order: %s: %v", e.Message, e.Err)
	}
	return "order: " + e.Message
}

func (e *OrderError) Unwrap() error { return e.Err }
