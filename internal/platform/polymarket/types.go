package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number, a numeric string or null. Anything
// that does not parse is zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		*f = flexFloat(v)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexString unmarshals from a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	*f = flexString(data)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// jsonList holds a list Gamma sends JSON-encoded inside a string. A bare
// array is kept as its JSON text; any other shape decodes to empty so one
// odd field never fails the whole market.
type jsonList string

func (l *jsonList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = jsonList(s)
	case len(data) > 0 && data[0] == '[':
		*l = jsonList(data)
	default:
		*l = ""
	}
	return nil
}

// APIMarket is the subset of a Gamma market record the backend reads.
// Outcomes, OutcomePrices and ClobTokenIDs are JSON-encoded string arrays.
type APIMarket struct {
	ID            flexString `json:"id"`
	Question      string     `json:"question"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	Outcomes      jsonList   `json:"outcomes"`
	OutcomePrices jsonList   `json:"outcomePrices"`
	ClobTokenIDs  jsonList   `json:"clobTokenIds"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
}

// OutcomeLabel returns the outcome name at index. ok is false when the
// outcomes field is missing, malformed or too short.
func (m APIMarket) OutcomeLabel(index int) (label string, ok bool) {
	if m.Outcomes == "" || index < 0 {
		return "", false
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return "", false
	}
	if index >= len(outcomes) || outcomes[index] == "" {
		return "", false
	}
	return outcomes[index], true
}

// APITag is a Gamma tag.
type APITag struct {
	ID    flexString `json:"id"`
	Label string     `json:"label"`
	Slug  string     `json:"slug"`
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is a wallet position from the Data API. Raw keeps the original
// object so it can be returned verbatim.
type APIPosition struct {
	Asset        string    `json:"asset"`
	ConditionID  string    `json:"conditionId"`
	Size         flexFloat `json:"size"`
	AvgPrice     flexFloat `json:"avgPrice"`
	CurPrice     flexFloat `json:"curPrice"`
	OutcomeIndex *int      `json:"outcomeIndex"`

	Raw json.RawMessage `json:"-"`
}

// APIValue is one row of the Data API /value response.
type APIValue struct {
	User  string    `json:"user"`
	Value flexFloat `json:"value"`
}

// APITrade is a loosely-typed Data API trade record. Field types vary
// between records, so it is kept as a generic map.
type APITrade map[string]any

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBookLevel is a single price level.
type APIBookLevel struct {
	Price flexString `json:"price"`
	Size  flexString `json:"size"`
}

// APIOrderbook is the CLOB /book response.
type APIOrderbook struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []APIBookLevel `json:"bids"`
	Asks    []APIBookLevel `json:"asks"`
}

// APIPrice is the CLOB /price response.
type APIPrice struct {
	Bid flexFloat `json:"bid"`
	Ask flexFloat `json:"ask"`
	Mid flexFloat `json:"mid"`
}

// APICredentials is the L2 credential set returned by /auth/derive-api-key.
type APICredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// RawResponse is an uninterpreted upstream response.
type RawResponse struct {
	StatusCode  int
	Status      string
	ContentType string
	Body        []byte
}

// IsJSON reports whether the response declared a JSON content type.
func (r *RawResponse) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.ContentType), "application/json")
}

// OK reports a 2xx status.
func (r *RawResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
