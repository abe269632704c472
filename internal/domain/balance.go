package domain

// BaseBalances holds the Base chain balances of a wallet.
type BaseBalances struct {
	USDC float64 `json:"usdc"`
	ETH  float64 `json:"eth"`
}

// PolygonBalances holds the Polygon chain balances of a wallet.
type PolygonBalances struct {
	USDC  float64 `json:"usdc"`
	MATIC float64 `json:"matic"`
}

// TotalBalances aggregates stablecoin holdings across chains.
type TotalBalances struct {
	USDC float64 `json:"usdc"`
}

// Balances is a best-effort snapshot of a wallet's balances. Every figure is
// non-negative; a failed lookup leaves its figure at zero.
type Balances struct {
	Base    BaseBalances    `json:"base"`
	Polygon PolygonBalances `json:"polygon"`
	Total   TotalBalances   `json:"total"`
}
