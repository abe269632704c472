package domain

import "encoding/json"

// EnrichedPosition is an open position joined with its market metadata.
// Value, PnL and PnLPercent are derived at read time.
type EnrichedPosition struct {
	ID           string  `json:"id"`
	MarketID     string  `json:"marketId"`
	ConditionID  string  `json:"conditionId"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurPrice     float64 `json:"curPrice"`
	PnL          float64 `json:"pnl"`
	PnLPercent   float64 `json:"pnlPercent"`
	Value        float64 `json:"value"`
}

// Portfolio summarises a wallet's open positions. Positions holds the raw
// upstream position objects.
type Portfolio struct {
	Positions          []json.RawMessage `json:"positions"`
	TotalValue         float64           `json:"totalValue"`
	OpenPositionsCount int               `json:"openPositionsCount"`
	PnL                float64           `json:"pnl"`
}

// EmptyPortfolio is the zero-value portfolio returned when upstream data is
// unavailable.
func EmptyPortfolio() Portfolio {
	return Portfolio{Positions: []json.RawMessage{}}
}
