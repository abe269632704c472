package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/minidict/minidict/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGamma_ListMarketsForwardsQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","question":"Will it rain?"}]`))
	}))
	defer srv.Close()

	g := NewGammaClient(srv.URL, nil)
	q := url.Values{}
	q.Set("limit", "10")
	q.Set("active", "true")

	raw, err := g.ListMarkets(context.Background(), q)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","question":"Will it rain?"}]`, string(raw))
	assert.Equal(t, url.Values{"limit": {"10"}, "active": {"true"}}, gotQuery)
}

func TestGamma_HTTPErrorMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL, nil).ListMarkets(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "Not Found", httpErr.StatusText())
}

func TestGamma_MarketsByCondition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc", r.URL.Query().Get("condition_id"))
		_, _ = w.Write([]byte(`[{"id":512,"question":"Q","outcomes":"[\"Yes\",\"No\"]","active":"true"}]`))
	}))
	defer srv.Close()

	markets, err := NewGammaClient(srv.URL, nil).MarketsByCondition(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "512", string(markets[0].ID))
	assert.True(t, bool(markets[0].Active))

	label, ok := markets[0].OutcomeLabel(1)
	assert.True(t, ok)
	assert.Equal(t, "No", label)

	_, ok = markets[0].OutcomeLabel(2)
	assert.False(t, ok)
}

func TestAPIMarket_OutcomeLabelMalformed(t *testing.T) {
	m := APIMarket{Outcomes: "not json"}
	_, ok := m.OutcomeLabel(0)
	assert.False(t, ok)
}

func TestGamma_MarketsByConditionLenientOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"question":"Array","outcomes":["Yes","No"]},
			{"id":2,"question":"Object","outcomes":{"0":"Yes"},"outcomePrices":7},
			{"id":3,"question":"Null","outcomes":null,"clobTokenIds":false}
		]`))
	}))
	defer srv.Close()

	markets, err := NewGammaClient(srv.URL, nil).MarketsByCondition(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, markets, 3)

	label, ok := markets[0].OutcomeLabel(0)
	assert.True(t, ok)
	assert.Equal(t, "Yes", label)

	for _, m := range markets[1:] {
		_, ok := m.OutcomeLabel(0)
		assert.False(t, ok, m.Question)
	}
	assert.Equal(t, "Object", markets[1].Question)
}

func TestGamma_Tags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tags", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"2","label":"Politics","slug":"politics"},{"id":7,"label":"Crypto","slug":"crypto"}]`))
	}))
	defer srv.Close()

	tags, err := NewGammaClient(srv.URL, nil).Tags(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "7", string(tags[1].ID))
	assert.Equal(t, "Crypto", tags[1].Label)
}

func TestData_PositionsLowercasesUserAndKeepsRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xabcdef", r.URL.Query().Get("user"))
		_, _ = w.Write([]byte(`[{"asset":"a1","conditionId":"c1","size":"100","avgPrice":0.4,"curPrice":0.6,"outcomeIndex":1,"extra":"x"}]`))
	}))
	defer srv.Close()

	positions, err := NewDataClient(srv.URL, nil).Positions(context.Background(), "0xABCDEF")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, 100.0, float64(p.Size))
	assert.Equal(t, 0.4, float64(p.AvgPrice))
	require.NotNil(t, p.OutcomeIndex)
	assert.Equal(t, 1, *p.OutcomeIndex)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(p.Raw, &raw))
	assert.Equal(t, "x", raw["extra"])
}

func TestData_TradesKeepsNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"timestamp":1700000000,"side":"BUY"}]`))
	}))
	defer srv.Close()

	trades, err := NewDataClient(srv.URL, nil).Trades(context.Background(), "0xA", 50)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, json.Number("1700000000"), trades[0]["timestamp"])
}

func TestClob_PostOrderPassesHeadersVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "0xuser", r.Header.Get("POLY_ADDRESS"))
		assert.Equal(t, "bkey", r.Header.Get("POLY_BUILDER_API_KEY"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"salt":1}`, string(body))

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	resp, err := NewClobClient(srv.URL, nil).PostOrder(context.Background(), []byte(`{"salt":1}`), map[string]string{
		"POLY_ADDRESS":         "0xuser",
		"POLY_BUILDER_API_KEY": "bkey",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, resp.IsJSON())
	assert.False(t, resp.OK())
}

func TestClob_PriceParsesStrings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token_id"))
		_, _ = w.Write([]byte(`{"bid":"0.41","ask":"0.43","mid":""}`))
	}))
	defer srv.Close()

	price, err := NewClobClient(srv.URL, nil).Price(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 0.41, float64(price.Bid))
	assert.Equal(t, 0.43, float64(price.Ask))
	assert.Equal(t, 0.0, float64(price.Mid))
}

func TestClob_OrderbookAndDerive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bids":[{"price":"0.4","size":"10"}],"asks":[{"price":0.6,"size":5}]}`))
	})
	mux.HandleFunc("/auth/derive-api-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xuser", r.Header.Get("POLY_ADDRESS"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		_, _ = w.Write([]byte(`{"apiKey":"k","secret":"s","passphrase":"p"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClobClient(srv.URL, nil)

	book, err := c.Orderbook(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "0.6", string(book.Asks[0].Price))

	creds, err := c.DeriveAPIKey(context.Background(), L1Auth{Address: "0xuser", Signature: "0xsig", Timestamp: "1"})
	require.NoError(t, err)
	assert.Equal(t, APICredentials{APIKey: "k", Secret: "s", Passphrase: "p"}, creds)
}
