package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

const (
	// maxEnrichedPositions caps the positions enriched per request.
	maxEnrichedPositions = 50
	// enrichConcurrency bounds concurrent market lookups per request.
	enrichConcurrency = 10

	unknownOutcome = "Unknown"
	unknownMarket  = "Unknown Market"
)

// PositionSource reads wallet positions and value from the Data API.
type PositionSource interface {
	Positions(ctx context.Context, user string) ([]polymarket.APIPosition, error)
	Value(ctx context.Context, user string) ([]polymarket.APIValue, error)
}

// MarketLookup resolves a condition id to its Gamma markets.
type MarketLookup interface {
	MarketsByCondition(ctx context.Context, conditionID string) ([]polymarket.APIMarket, error)
}

// PortfolioService builds portfolio summaries and enriched position lists.
type PortfolioService struct {
	data      PositionSource
	markets   MarketLookup
	cache     *responseCache
	marketTTL time.Duration
	logger    *slog.Logger
}

// NewPortfolioService creates a PortfolioService. Market lookups are cached
// for marketTTL.
func NewPortfolioService(data PositionSource, markets MarketLookup, cache domain.Cache, marketTTL time.Duration, logger *slog.Logger) *PortfolioService {
	logger = logger.With(slog.String("component", "portfolio_service"))
	return &PortfolioService{
		data:      data,
		markets:   markets,
		cache:     newResponseCache(cache, logger),
		marketTTL: marketTTL,
		logger:    logger,
	}
}

// Portfolio returns the open positions of address (raw upstream objects),
// the Data API portfolio value and an approximate unrealised P&L. Positions
// and value are fetched concurrently; a failed fetch contributes nothing.
func (s *PortfolioService) Portfolio(ctx context.Context, address string) domain.Portfolio {
	var (
		positions []polymarket.APIPosition
		values    []polymarket.APIValue
		g         errgroup.Group
	)

	g.Go(func() error {
		var err error
		if positions, err = s.data.Positions(ctx, address); err != nil {
			s.logger.WarnContext(ctx, "portfolio_service: positions fetch failed", slog.String("error", err.Error()))
			positions = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if values, err = s.data.Value(ctx, address); err != nil {
			s.logger.WarnContext(ctx, "portfolio_service: value fetch failed", slog.String("error", err.Error()))
			values = nil
		}
		return nil
	})
	_ = g.Wait()

	out := domain.EmptyPortfolio()
	if len(values) > 0 {
		out.TotalValue = float64(values[0].Value)
	}

	pnl := decimal.Zero
	for _, p := range positions {
		if p.Size <= 0 {
			continue
		}
		raw := p.Raw
		if raw == nil {
			raw, _ = json.Marshal(p)
		}
		out.Positions = append(out.Positions, raw)

		if p.AvgPrice != 0 && p.CurPrice != 0 {
			size := decimal.NewFromFloat(float64(p.Size))
			diff := decimal.NewFromFloat(float64(p.CurPrice)).Sub(decimal.NewFromFloat(float64(p.AvgPrice)))
			pnl = pnl.Add(diff.Mul(size))
		}
	}
	out.OpenPositionsCount = len(out.Positions)
	out.PnL = pnl.InexactFloat64()

	return out
}

// Positions returns up to 50 open positions of address joined with their
// market metadata, in upstream order. A position whose market lookup fails
// at the transport level is dropped; an upstream HTTP error keeps it with
// unknown labels.
func (s *PortfolioService) Positions(ctx context.Context, address string) []domain.EnrichedPosition {
	raw, err := s.data.Positions(ctx, address)
	if err != nil {
		s.logger.WarnContext(ctx, "portfolio_service: positions fetch failed", slog.String("error", err.Error()))
		return []domain.EnrichedPosition{}
	}

	open := make([]polymarket.APIPosition, 0, len(raw))
	for _, p := range raw {
		if p.Size > 0 {
			open = append(open, p)
		}
	}
	if len(open) > maxEnrichedPositions {
		open = open[:maxEnrichedPositions]
	}

	results := make([]*domain.EnrichedPosition, len(open))
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i, p := range open {
		g.Go(func() error {
			market, ok := s.lookupMarket(ctx, p.ConditionID)
			if !ok {
				return nil
			}
			enriched := EnrichPosition(p, market)
			results[i] = &enriched
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.EnrichedPosition, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// lookupMarket returns the first market for conditionID. ok is false when
// the position must be dropped.
func (s *PortfolioService) lookupMarket(ctx context.Context, conditionID string) (*polymarket.APIMarket, bool) {
	markets, err := cached(ctx, s.cache, "market:condition:"+conditionID, s.marketTTL,
		func(ctx context.Context) ([]polymarket.APIMarket, error) {
			return s.markets.MarketsByCondition(ctx, conditionID)
		})
	if err != nil {
		var httpErr *polymarket.HTTPError
		if errors.As(err, &httpErr) {
			return nil, true
		}
		s.logger.WarnContext(ctx, "portfolio_service: market lookup failed, dropping position",
			slog.String("condition_id", conditionID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if len(markets) == 0 {
		return nil, true
	}
	return &markets[0], true
}

// EnrichPosition derives value, cost basis and P&L for p and labels it with
// market metadata. market may be nil.
func EnrichPosition(p polymarket.APIPosition, market *polymarket.APIMarket) domain.EnrichedPosition {
	avg := decimal.NewFromFloat(float64(p.AvgPrice))
	cur := avg
	if p.CurPrice != 0 {
		cur = decimal.NewFromFloat(float64(p.CurPrice))
	}
	size := decimal.NewFromFloat(float64(p.Size))

	value := size.Mul(cur)
	cost := size.Mul(avg)
	pnl := value.Sub(cost)
	pnlPercent := decimal.Zero
	if cost.IsPositive() {
		pnlPercent = pnl.Div(cost).Mul(decimal.NewFromInt(100))
	}

	outcomeIndex := 0
	if p.OutcomeIndex != nil {
		outcomeIndex = *p.OutcomeIndex
	}

	out := domain.EnrichedPosition{
		ID:           p.Asset,
		MarketID:     p.ConditionID,
		ConditionID:  p.ConditionID,
		Title:        unknownMarket,
		Outcome:      unknownOutcome,
		OutcomeIndex: outcomeIndex,
		Size:         size.InexactFloat64(),
		AvgPrice:     avg.InexactFloat64(),
		CurPrice:     cur.InexactFloat64(),
		PnL:          pnl.InexactFloat64(),
		PnLPercent:   pnlPercent.InexactFloat64(),
		Value:        value.InexactFloat64(),
	}
	if out.ID == "" {
		out.ID = p.ConditionID
	}

	if market != nil {
		if market.ID != "" {
			out.MarketID = string(market.ID)
		}
		if market.Question != "" {
			out.Title = market.Question
		}
		if label, ok := market.OutcomeLabel(outcomeIndex); ok {
			out.Outcome = label
		}
	}
	return out
}
