package domain

// Trade is a normalised entry of a wallet's trade history.
type Trade struct {
	ID        string  `json:"id"`
	Market    string  `json:"market"`
	Outcome   string  `json:"outcome"`
	Side      string  `json:"side"` // "buy" or "sell"
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Timestamp any     `json:"timestamp"`
}
