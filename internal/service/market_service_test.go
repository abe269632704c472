package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minidict/minidict/internal/cache/memory"
	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

type fakeGamma struct {
	mu          sync.Mutex
	lastQuery   url.Values
	marketsBody json.RawMessage
	marketsErr  error
	tags        []polymarket.APITag
	tagsErr     error
	tagsDelay   time.Duration
	marketCalls atomic.Int32
	tagCalls    atomic.Int32
}

func (f *fakeGamma) ListMarkets(_ context.Context, query url.Values) (json.RawMessage, error) {
	f.marketCalls.Add(1)
	f.mu.Lock()
	f.lastQuery = query
	f.mu.Unlock()
	return f.marketsBody, f.marketsErr
}

func (f *fakeGamma) ListEvents(_ context.Context, query url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	f.lastQuery = query
	f.mu.Unlock()
	return json.RawMessage(`[{"id":"e1"}]`), nil
}

func (f *fakeGamma) Tags(context.Context, int) ([]polymarket.APITag, error) {
	f.tagCalls.Add(1)
	if f.tagsDelay > 0 {
		time.Sleep(f.tagsDelay)
	}
	return f.tags, f.tagsErr
}

type fakeBook struct {
	book     polymarket.APIOrderbook
	price    polymarket.APIPrice
	err      error
	gotToken string
}

func (f *fakeBook) Orderbook(_ context.Context, tokenID string) (polymarket.APIOrderbook, error) {
	f.gotToken = tokenID
	return f.book, f.err
}

func (f *fakeBook) Price(_ context.Context, tokenID string) (polymarket.APIPrice, error) {
	f.gotToken = tokenID
	return f.price, f.err
}

func TestMarkets_ForwardsOnlySetParams(t *testing.T) {
	gamma := &fakeGamma{marketsBody: json.RawMessage(`[]`)}
	svc := NewMarketService(gamma, &fakeBook{}, nil, MarketTTLs{}, discardLogger())

	query := url.Values{}
	query.Set("limit", "20")
	query.Set("active", "true")
	query.Set("offset", "")
	query.Set("unrelated", "x")

	_, err := svc.Markets(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"limit": {"20"}, "active": {"true"}}, gamma.lastQuery)
}

func TestMarkets_PassesThroughBodyAndErrors(t *testing.T) {
	gamma := &fakeGamma{marketsBody: json.RawMessage(`[{"id":"1","question":"Q"}]`)}
	svc := NewMarketService(gamma, &fakeBook{}, nil, MarketTTLs{}, discardLogger())

	body, err := svc.Markets(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","question":"Q"}]`, string(body))

	gamma.marketsErr = &polymarket.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
	_, err = svc.Markets(context.Background(), url.Values{})
	var httpErr *polymarket.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 503, httpErr.StatusCode)
}

func TestMarkets_CachedPerQuery(t *testing.T) {
	gamma := &fakeGamma{marketsBody: json.RawMessage(`[]`)}
	svc := NewMarketService(gamma, &fakeBook{}, memory.NewCache(time.Minute), MarketTTLs{Markets: 30 * time.Second}, discardLogger())

	q1 := url.Values{"limit": {"10"}}
	q2 := url.Values{"limit": {"20"}}
	for i := 0; i < 3; i++ {
		_, err := svc.Markets(context.Background(), q1)
		require.NoError(t, err)
	}
	_, err := svc.Markets(context.Background(), q2)
	require.NoError(t, err)

	assert.Equal(t, int32(2), gamma.marketCalls.Load())
}

func TestEvents_ForwardsTagID(t *testing.T) {
	gamma := &fakeGamma{}
	svc := NewMarketService(gamma, &fakeBook{}, nil, MarketTTLs{}, discardLogger())

	body, err := svc.Events(context.Background(), url.Values{"tag_id": {"2"}, "tag": {"politics"}, "closed": {"false"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"e1"}]`, string(body))
	assert.Equal(t, url.Values{"tag_id": {"2"}, "closed": {"false"}}, gamma.lastQuery)
}

func TestTags(t *testing.T) {
	gamma := &fakeGamma{tags: []polymarket.APITag{{ID: "2", Label: "Politics", Slug: "politics"}}}
	svc := NewMarketService(gamma, &fakeBook{}, nil, MarketTTLs{}, discardLogger())

	assert.Equal(t, []domain.Tag{{ID: "2", Label: "Politics", Slug: "politics"}}, svc.Tags(context.Background()))

	gamma.tagsErr = errors.New("boom")
	got := svc.Tags(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTags_ConcurrentMissesCollapse(t *testing.T) {
	gamma := &fakeGamma{
		tags:      []polymarket.APITag{{ID: "1", Label: "Crypto", Slug: "crypto"}},
		tagsDelay: 50 * time.Millisecond,
	}
	svc := NewMarketService(gamma, &fakeBook{}, memory.NewCache(time.Minute), MarketTTLs{Tags: time.Hour}, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, svc.Tags(context.Background()), 1)
		}()
	}
	wg.Wait()
	assert.Len(t, svc.Tags(context.Background()), 1)

	assert.Equal(t, int32(1), gamma.tagCalls.Load())
}

func TestOrderbookAndPrice(t *testing.T) {
	book := &fakeBook{
		book: polymarket.APIOrderbook{
			Bids: []polymarket.APIBookLevel{{Price: "0.45", Size: "100"}},
			Asks: []polymarket.APIBookLevel{{Price: "0.55", Size: "80"}},
		},
		price: polymarket.APIPrice{Bid: 0.45, Ask: 0.55, Mid: 0.5},
	}
	svc := NewMarketService(&fakeGamma{}, book, nil, MarketTTLs{}, discardLogger())

	got := svc.Orderbook(context.Background(), "123")
	assert.Equal(t, "123", book.gotToken)
	assert.Equal(t, []domain.BookLevel{{Price: "0.45", Size: "100"}}, got.Bids)
	assert.Equal(t, []domain.BookLevel{{Price: "0.55", Size: "80"}}, got.Asks)
	assert.Equal(t, domain.PriceQuote{Bid: 0.45, Ask: 0.55, Mid: 0.5}, svc.Price(context.Background(), "123"))

	book.err = errors.New("down")
	empty := svc.Orderbook(context.Background(), "123")
	assert.NotNil(t, empty.Bids)
	assert.Empty(t, empty.Bids)
	assert.Equal(t, domain.PriceQuote{}, svc.Price(context.Background(), "123"))
}
