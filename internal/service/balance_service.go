package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/minidict/minidict/internal/domain"
)

// USDC contract addresses.
const (
	USDCBase    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	USDCPolygon = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

const (
	usdcDecimals   = 6
	nativeDecimals = 18
)

// ChainReader reads token and native balances from one chain.
type ChainReader interface {
	TokenBalance(ctx context.Context, token, wallet string) (*big.Int, error)
	NativeBalance(ctx context.Context, wallet string) (*big.Int, error)
}

// BalanceService aggregates USDC and gas-token balances across Base and
// Polygon.
type BalanceService struct {
	base    ChainReader
	polygon ChainReader
	cache   *responseCache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewBalanceService creates a BalanceService. A zero ttl disables caching.
func NewBalanceService(base, polygon ChainReader, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *BalanceService {
	logger = logger.With(slog.String("component", "balance_service"))
	return &BalanceService{
		base:    base,
		polygon: polygon,
		cache:   newResponseCache(cache, logger),
		ttl:     ttl,
		logger:  logger,
	}
}

// Balances returns the wallet's balances. The four lookups run
// concurrently; each failed lookup contributes zero. An address that is not
// a 20-byte hex address yields all zeros without any upstream call. A
// snapshot with a failed lookup is returned but not cached.
func (s *BalanceService) Balances(ctx context.Context, address string) domain.Balances {
	if !common.IsHexAddress(address) {
		s.logger.DebugContext(ctx, "balance_service: invalid address", slog.String("address", address))
		return domain.Balances{}
	}

	key := "balances:" + strings.ToLower(address)
	b, _ := cached(ctx, s.cache, key, s.ttl, s.fetch(address))
	return b
}

// fetch returns a loader for address. The loader always returns the full
// snapshot; its error reports the first failed lookup.
func (s *BalanceService) fetch(address string) func(context.Context) (domain.Balances, error) {
	return func(ctx context.Context) (domain.Balances, error) {
		var (
			usdcBase, usdcPolygon, eth, matic float64
			g                                 errgroup.Group
		)

		g.Go(func() (err error) {
			usdcBase, err = s.scaled(ctx, "usdc_base", usdcDecimals, func() (*big.Int, error) {
				return s.base.TokenBalance(ctx, USDCBase, address)
			})
			return err
		})
		g.Go(func() (err error) {
			usdcPolygon, err = s.scaled(ctx, "usdc_polygon", usdcDecimals, func() (*big.Int, error) {
				return s.polygon.TokenBalance(ctx, USDCPolygon, address)
			})
			return err
		})
		g.Go(func() (err error) {
			eth, err = s.scaled(ctx, "eth_base", nativeDecimals, func() (*big.Int, error) {
				return s.base.NativeBalance(ctx, address)
			})
			return err
		})
		g.Go(func() (err error) {
			matic, err = s.scaled(ctx, "matic_polygon", nativeDecimals, func() (*big.Int, error) {
				return s.polygon.NativeBalance(ctx, address)
			})
			return err
		})
		err := g.Wait()

		total := decimal.NewFromFloat(usdcBase).Add(decimal.NewFromFloat(usdcPolygon))

		return domain.Balances{
			Base:    domain.BaseBalances{USDC: usdcBase, ETH: eth},
			Polygon: domain.PolygonBalances{USDC: usdcPolygon, MATIC: matic},
			Total:   domain.TotalBalances{USDC: total.InexactFloat64()},
		}, err
	}
}

// scaled runs one lookup and converts base units to a float. Failures and
// negative results are zero; failures are also returned.
func (s *BalanceService) scaled(ctx context.Context, what string, decimals int32, lookup func() (*big.Int, error)) (float64, error) {
	raw, err := lookup()
	if err != nil {
		s.logger.WarnContext(ctx, "balance_service: lookup failed",
			slog.String("balance", what),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("balance_service: %s: %w", what, err)
	}
	if raw == nil || raw.Sign() <= 0 {
		return 0, nil
	}
	return decimal.NewFromBigInt(raw, -decimals).InexactFloat64(), nil
}
