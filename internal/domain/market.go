package domain

// Tag is a Gamma market category.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// PriceQuote is the best bid/ask and midpoint for a CLOB token.
type PriceQuote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
	Mid float64 `json:"mid"`
}

// BookLevel is a single price level of an order book.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Orderbook is a CLOB order book snapshot for one token.
type Orderbook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}
