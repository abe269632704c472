// Package session tracks one user's wallet connection and the data derived
// from it: balances, portfolio summary and display identity.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/minidict/minidict/internal/domain"
)

// TargetChainID is the chain the app trades on (Base mainnet).
const TargetChainID int64 = 8453

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

var (
	ErrNoWallet   = errors.New("session: no wallet provider")
	ErrNoAccounts = errors.New("session: wallet returned no accounts")
)

// Status is the connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// FrameUser is the Farcaster user context exposed by an in-frame host.
type FrameUser struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PfpURL      string `json:"pfpUrl,omitempty"`
	Custody     string `json:"custody,omitempty"`
}

// PortfolioSummary is the headline portfolio figures of the session wallet.
type PortfolioSummary struct {
	TotalValue         float64 `json:"totalValue"`
	OpenPositionsCount int     `json:"openPositionsCount"`
	PnL                float64 `json:"pnl"`
	Loading            bool    `json:"isLoading"`
}

// State is a snapshot of a session. Generation increases on every address
// change and disconnect.
type State struct {
	Status     Status           `json:"status"`
	Address    string           `json:"address"`
	ChainID    int64            `json:"chainId"`
	Switching  bool             `json:"switching"`
	Balances   domain.Balances  `json:"balances"`
	Portfolio  PortfolioSummary `json:"portfolio"`
	Basename   *string          `json:"basename"`
	Avatar     string           `json:"avatar"`
	InFrame    bool             `json:"inFrame"`
	FrameReady bool             `json:"frameReady"`
	FrameUser  *FrameUser       `json:"frameUser,omitempty"`
	Generation uint64           `json:"generation"`
}

// Connected reports whether the session has a connected address.
func (s State) Connected() bool {
	return s.Status == StatusConnected && s.Address != ""
}

// RPCError is an error returned by an EIP-1193 wallet provider.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// rpcCode returns the provider error code carried by err, or 0.
func rpcCode(err error) int {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// ChainHex formats a chain id the way wallet providers expect it.
func ChainHex(id int64) string {
	return "0x" + strconv.FormatInt(id, 16)
}

// ParseChainID accepts a 0x-prefixed hex or a decimal chain id.
func ParseChainID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var (
		id  int64
		err error
	)
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		id, err = strconv.ParseInt(rest, 16, 64)
	} else {
		id, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("session: parse chain id %q: %w", s, err)
	}
	return id, nil
}
