package domain

// Identity is the display identity resolved for a wallet address. Basename is
// nil when no name could be resolved.
type Identity struct {
	Basename *string `json:"basename"`
	Avatar   string  `json:"avatar"`
}
