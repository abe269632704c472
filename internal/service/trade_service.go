package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

const tradesLimit = 50

// TradeSource reads a wallet's trade history.
type TradeSource interface {
	Trades(ctx context.Context, user string, limit int) ([]polymarket.APITrade, error)
}

// TradeService normalises Data API trade history.
type TradeService struct {
	data   TradeSource
	nowFn  func() time.Time
	logger *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(data TradeSource, logger *slog.Logger) *TradeService {
	return &TradeService{
		data:   data,
		nowFn:  time.Now,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// Trades returns the latest 50 trades of address. Failures yield an empty
// list.
func (s *TradeService) Trades(ctx context.Context, address string) []domain.Trade {
	raw, err := s.data.Trades(ctx, address, tradesLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "trade_service: trades fetch failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return []domain.Trade{}
	}

	out := make([]domain.Trade, 0, len(raw))
	for _, t := range raw {
		out = append(out, s.normalise(t))
	}
	return out
}

func (s *TradeService) normalise(t polymarket.APITrade) domain.Trade {
	timestamp := firstPresent(t, "timestamp", "created_at")
	if timestamp == nil {
		timestamp = s.nowFn().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}

	id := firstString(t, "id")
	if id == "" {
		id = fmt.Sprintf("%v-%s", timestamp, uuid.NewString())
	}

	market := firstString(t, "market_slug", "title")
	if market == "" {
		market = unknownMarket
	}
	outcome := firstString(t, "outcome", "asset_ticker")
	if outcome == "" {
		outcome = unknownOutcome
	}
	side := "sell"
	if v, ok := t["side"].(string); ok && v == "BUY" {
		side = "buy"
	}

	return domain.Trade{
		ID:        id,
		Market:    market,
		Outcome:   outcome,
		Side:      side,
		Amount:    parseLooseFloat(firstPresent(t, "size", "amount")),
		Price:     parseLooseFloat(t["price"]),
		Timestamp: timestamp,
	}
}

// firstPresent returns the first value among keys that is neither missing
// nor a zero-like scalar.
func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			if f, err := v.Float64(); err != nil || f != 0 {
				return v
			}
		case float64:
			if v != 0 {
				return v
			}
		case bool:
			if v {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

// parseLooseFloat parses the leading decimal of v, yielding 0 when there is
// none.
func parseLooseFloat(v any) float64 {
	var s string
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case json.Number:
		s = x.String()
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	end := 0
	seenDot, seenDigit := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}
