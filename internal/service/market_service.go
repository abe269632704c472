package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

// Query parameters forwarded to Gamma, in forwarding order.
var (
	marketParams = []string{"limit", "offset", "tag", "closed", "order", "ascending", "active"}
	eventParams  = []string{"limit", "offset", "tag_id", "closed", "order", "ascending"}
)

const tagsLimit = 100

// GammaReader lists markets, events and tags.
type GammaReader interface {
	ListMarkets(ctx context.Context, query url.Values) (json.RawMessage, error)
	ListEvents(ctx context.Context, query url.Values) (json.RawMessage, error)
	Tags(ctx context.Context, limit int) ([]polymarket.APITag, error)
}

// BookReader reads CLOB order books and prices.
type BookReader interface {
	Orderbook(ctx context.Context, tokenID string) (polymarket.APIOrderbook, error)
	Price(ctx context.Context, tokenID string) (polymarket.APIPrice, error)
}

// MarketTTLs configures how long each read is cached.
type MarketTTLs struct {
	Markets time.Duration
	Events  time.Duration
	Tags    time.Duration
}

// MarketService serves market discovery and CLOB reads.
type MarketService struct {
	gamma  GammaReader
	book   BookReader
	cache  *responseCache
	ttls   MarketTTLs
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(gamma GammaReader, book BookReader, cache domain.Cache, ttls MarketTTLs, logger *slog.Logger) *MarketService {
	logger = logger.With(slog.String("component", "market_service"))
	return &MarketService{
		gamma:  gamma,
		book:   book,
		cache:  newResponseCache(cache, logger),
		ttls:   ttls,
		logger: logger,
	}
}

// Markets forwards the non-empty supported parameters of query to Gamma and
// returns its response body. Upstream status failures surface as
// *polymarket.HTTPError.
func (s *MarketService) Markets(ctx context.Context, query url.Values) (json.RawMessage, error) {
	params := pickParams(query, marketParams)
	return cached(ctx, s.cache, "markets:"+params.Encode(), s.ttls.Markets, func(ctx context.Context) (json.RawMessage, error) {
		return s.gamma.ListMarkets(ctx, params)
	})
}

// Events is the Markets equivalent for Gamma events.
func (s *MarketService) Events(ctx context.Context, query url.Values) (json.RawMessage, error) {
	params := pickParams(query, eventParams)
	return cached(ctx, s.cache, "events:"+params.Encode(), s.ttls.Events, func(ctx context.Context) (json.RawMessage, error) {
		return s.gamma.ListEvents(ctx, params)
	})
}

// Tags returns up to 100 Gamma tags. Failures yield an empty list.
func (s *MarketService) Tags(ctx context.Context) []domain.Tag {
	tags, err := cached(ctx, s.cache, "tags", s.ttls.Tags, func(ctx context.Context) ([]domain.Tag, error) {
		raw, err := s.gamma.Tags(ctx, tagsLimit)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Tag, 0, len(raw))
		for _, t := range raw {
			out = append(out, domain.Tag{ID: string(t.ID), Label: t.Label, Slug: t.Slug})
		}
		return out, nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: tags fetch failed", slog.String("error", err.Error()))
		return []domain.Tag{}
	}
	return tags
}

// Orderbook returns the CLOB book of tokenID, or an empty book on failure.
func (s *MarketService) Orderbook(ctx context.Context, tokenID string) domain.Orderbook {
	out := domain.Orderbook{Bids: []domain.BookLevel{}, Asks: []domain.BookLevel{}}
	book, err := s.book.Orderbook(ctx, tokenID)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: orderbook fetch failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return out
	}
	for _, l := range book.Bids {
		out.Bids = append(out.Bids, domain.BookLevel{Price: string(l.Price), Size: string(l.Size)})
	}
	for _, l := range book.Asks {
		out.Asks = append(out.Asks, domain.BookLevel{Price: string(l.Price), Size: string(l.Size)})
	}
	return out
}

// Price returns the CLOB bid, ask and mid of tokenID, or zeros on failure.
func (s *MarketService) Price(ctx context.Context, tokenID string) domain.PriceQuote {
	p, err := s.book.Price(ctx, tokenID)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: price fetch failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return domain.PriceQuote{}
	}
	return domain.PriceQuote{Bid: float64(p.Bid), Ask: float64(p.Ask), Mid: float64(p.Mid)}
}

// pickParams copies the first non-empty value of each allowed key.
func pickParams(query url.Values, allowed []string) url.Values {
	out := url.Values{}
	for _, k := range allowed {
		if v := query.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out
}
