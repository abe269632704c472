// Package evm reads balances and resolver records from EVM JSON-RPC nodes.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/minidict/minidict/internal/domain"
)

const contractsABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"node","type":"bytes32"},{"name":"key","type":"string"}],"name":"text","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

var (
	parsedABI     abi.ABI
	parsedABIOnce sync.Once
)

func contracts() abi.ABI {
	parsedABIOnce.Do(func() {
		var err error
		parsedABI, err = abi.JSON(strings.NewReader(contractsABI))
		if err != nil {
			panic(fmt.Sprintf("evm: parse contract ABI: %v", err))
		}
	})
	return parsedABI
}

// Client is a read-only JSON-RPC client for one chain.
type Client struct {
	name string
	rpc  *rpc.Client
}

// NewClient creates a client for the node at rpcURL. name labels errors,
// e.g. "base". No connection is made until the first call.
func NewClient(name, rpcURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c, err := rpc.DialHTTPWithClient(rpcURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("evm/%s: dial %s: %w", name, rpcURL, err)
	}
	return &Client{name: name, rpc: c}, nil
}

// Name returns the chain label.
func (c *Client) Name() string { return c.name }

// Close releases the underlying RPC client.
func (c *Client) Close() {
	c.rpc.Close()
}

// TokenBalance returns the ERC-20 balanceOf(wallet) of token in base units.
// An empty "0x" result is zero.
func (c *Client) TokenBalance(ctx context.Context, token, wallet string) (*big.Int, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("evm/%s: %w: %q", c.name, domain.ErrInvalidAddress, wallet)
	}

	data, err := contracts().Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return nil, fmt.Errorf("evm/%s: pack balanceOf: %w", c.name, err)
	}

	out, err := c.call(ctx, common.HexToAddress(token), data)
	if err != nil {
		return nil, fmt.Errorf("evm/%s: balanceOf %s: %w", c.name, token, err)
	}
	if len(out) == 0 {
		return big.NewInt(0), nil
	}

	unpacked, err := contracts().Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("evm/%s: unpack balanceOf: %w", c.name, err)
	}
	bal, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm/%s: unexpected balanceOf type %T", c.name, unpacked[0])
	}
	return bal, nil
}

// NativeBalance returns the native coin balance of wallet in wei.
func (c *Client) NativeBalance(ctx context.Context, wallet string) (*big.Int, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("evm/%s: %w: %q", c.name, domain.ErrInvalidAddress, wallet)
	}

	var result hexutil.Big
	if err := c.rpc.CallContext(ctx, &result, "eth_getBalance", common.HexToAddress(wallet), "latest"); err != nil {
		return nil, fmt.Errorf("evm/%s: eth_getBalance: %w", c.name, err)
	}
	return result.ToInt(), nil
}

// TextRecord reads text(node, key) from an ENS-style resolver. A resolver
// with no record returns "".
func (c *Client) TextRecord(ctx context.Context, resolver string, node common.Hash, key string) (string, error) {
	data, err := contracts().Pack("text", node, key)
	if err != nil {
		return "", fmt.Errorf("evm/%s: pack text: %w", c.name, err)
	}

	out, err := c.call(ctx, common.HexToAddress(resolver), data)
	if err != nil {
		return "", fmt.Errorf("evm/%s: text %s: %w", c.name, key, err)
	}
	if len(out) == 0 {
		return "", nil
	}

	unpacked, err := contracts().Unpack("text", out)
	if err != nil {
		return "", fmt.Errorf("evm/%s: unpack text: %w", c.name, err)
	}
	value, _ := unpacked[0].(string)
	return value, nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) (hexutil.Bytes, error) {
	args := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var out hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &out, "eth_call", args, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}
