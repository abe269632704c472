package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/minidict/minidict/internal/domain"
)

const defaultRefreshTimeout = 30 * time.Second

// BalanceSource returns wallet balances.
type BalanceSource interface {
	Balances(ctx context.Context, address string) domain.Balances
}

// PortfolioSource returns a wallet portfolio summary.
type PortfolioSource interface {
	Portfolio(ctx context.Context, address string) domain.Portfolio
}

// IdentitySource resolves a wallet's display identity.
type IdentitySource interface {
	Resolve(ctx context.Context, address string) domain.Identity
}

// Deps are the data sources a Manager refreshes from. Nil sources are
// skipped.
type Deps struct {
	Balances       BalanceSource
	Portfolio      PortfolioSource
	Identity       IdentitySource
	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

// Manager drives one session's state machine. All methods are safe for
// concurrent use.
type Manager struct {
	host           Host
	balances       BalanceSource
	portfolio      PortfolioSource
	identity       IdentitySource
	refreshTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	state   State
	subs    map[uint64]chan State
	nextSub uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a disconnected session on host.
func NewManager(host Host, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		host:           host,
		balances:       deps.Balances,
		portfolio:      deps.Portfolio,
		identity:       deps.Identity,
		refreshTimeout: timeout,
		logger:         logger.With(slog.String("component", "session")),
		subs:           make(map[uint64]chan State),
		ctx:            ctx,
		cancel:         cancel,
	}
	m.state = m.emptyState()
	return m
}

// emptyState is the disconnected state, keeping host facts.
func (m *Manager) emptyState() State {
	s := State{Status: StatusDisconnected}
	if u := m.host.Frame(); u != nil {
		s.InFrame = true
		s.FrameUser = u
	}
	return s
}

// Start adopts the frame user's custody address when there is one, and
// otherwise silently reconnects an already-authorised wallet. Nothing is
// prompted; failures leave the session disconnected.
func (m *Manager) Start(ctx context.Context) {
	if u := m.host.Frame(); u != nil && u.Custody != "" {
		m.logger.InfoContext(ctx, "session: adopting frame custody address", slog.Int64("fid", u.FID))
		m.adopt(u.Custody, TargetChainID)
		return
	}

	w := m.host.Wallet()
	if w == nil {
		return
	}
	accounts, err := requestAccounts(ctx, w, "eth_accounts")
	if err != nil {
		m.logger.DebugContext(ctx, "session: auto-reconnect skipped", slog.String("error", err.Error()))
		return
	}
	if len(accounts) == 0 {
		return
	}

	chain := m.walletChain(ctx, w)
	if chain != TargetChainID {
		if err := switchChain(ctx, w, TargetChainID, false); err != nil {
			m.logger.DebugContext(ctx, "session: auto-reconnect chain switch failed", slog.String("error", err.Error()))
		} else {
			chain = TargetChainID
		}
	}
	m.adopt(accounts[0], chain)
}

// Connect asks the wallet for accounts and moves the target chain into
// place. Chain switch failures are tolerated.
func (m *Manager) Connect(ctx context.Context) error {
	w := m.host.Wallet()
	if w == nil {
		return ErrNoWallet
	}

	m.mu.Lock()
	prev := m.state.Status
	m.state.Status = StatusConnecting
	m.publishLocked()
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		if m.state.Status == StatusConnecting {
			m.state.Status = prev
			m.publishLocked()
		}
		m.mu.Unlock()
	}

	accounts, err := requestAccounts(ctx, w, "eth_requestAccounts")
	if err == nil && len(accounts) == 0 {
		err = ErrNoAccounts
	}
	if err != nil {
		restore()
		m.logger.WarnContext(ctx, "session: connect failed", slog.String("error", err.Error()))
		return err
	}

	chain := m.walletChain(ctx, w)
	if chain != TargetChainID {
		m.setSwitching(true)
		err := switchChain(ctx, w, TargetChainID, true)
		m.setSwitching(false)
		if err != nil {
			m.logger.WarnContext(ctx, "session: chain switch failed",
				slog.Int64("chain_id", chain),
				slog.String("error", err.Error()),
			)
		} else {
			chain = TargetChainID
		}
	}

	m.adopt(accounts[0], chain)
	return nil
}

// Disconnect clears the session. The wallet's authorisation is not revoked.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ready := m.state.Generation+1, m.state.FrameReady
	m.state = m.emptyState()
	m.state.FrameReady = ready
	m.state.Generation = gen
	m.publishLocked()
}

// SwitchChain asks the wallet to move to chainID. A user rejection is not
// an error.
func (m *Manager) SwitchChain(ctx context.Context, chainID int64) error {
	w := m.host.Wallet()
	if w == nil {
		return ErrNoWallet
	}

	m.setSwitching(true)
	err := switchChain(ctx, w, chainID, true)
	m.setSwitching(false)

	switch {
	case err == nil:
		m.mu.Lock()
		m.state.ChainID = chainID
		m.publishLocked()
		m.mu.Unlock()
		return nil
	case rpcCode(err) == CodeUserRejected:
		m.logger.InfoContext(ctx, "session: chain switch rejected by user", slog.Int64("chain_id", chainID))
		return nil
	default:
		return fmt.Errorf("session: switch chain: %w", err)
	}
}

// HandleAccountsChanged mirrors a wallet accountsChanged event. An empty
// list disconnects.
func (m *Manager) HandleAccountsChanged(accounts []string) {
	if len(accounts) == 0 {
		m.Disconnect()
		return
	}

	m.mu.Lock()
	same := m.state.Connected() && strings.EqualFold(m.state.Address, accounts[0])
	chain := m.state.ChainID
	m.mu.Unlock()
	if same {
		return
	}
	m.adopt(accounts[0], chain)
}

// HandleChainChanged mirrors a wallet chainChanged event.
func (m *Manager) HandleChainChanged(chainID string) error {
	id, err := ParseChainID(chainID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.state.ChainID = id
	m.publishLocked()
	m.mu.Unlock()
	return nil
}

// RefreshBalances reloads the balances of the current address. It reports
// whether the result was applied; results for a superseded address are
// discarded.
func (m *Manager) RefreshBalances(ctx context.Context) bool {
	addr, gen, ok := m.current()
	if !ok || m.balances == nil {
		return false
	}
	b := m.balances.Balances(ctx, addr)
	return m.apply(gen, "balances", func(s *State) { s.Balances = b })
}

// RefreshPortfolio reloads the portfolio summary of the current address.
func (m *Manager) RefreshPortfolio(ctx context.Context) bool {
	addr, gen, ok := m.current()
	if !ok || m.portfolio == nil {
		return false
	}
	m.apply(gen, "portfolio", func(s *State) { s.Portfolio.Loading = true })

	p := m.portfolio.Portfolio(ctx, addr)
	return m.apply(gen, "portfolio", func(s *State) {
		s.Portfolio = PortfolioSummary{
			TotalValue:         p.TotalValue,
			OpenPositionsCount: p.OpenPositionsCount,
			PnL:                p.PnL,
		}
	})
}

// RefreshIdentity reloads the display identity of the current address.
func (m *Manager) RefreshIdentity(ctx context.Context) bool {
	addr, gen, ok := m.current()
	if !ok || m.identity == nil {
		return false
	}
	id := m.identity.Resolve(ctx, addr)
	return m.apply(gen, "identity", func(s *State) {
		s.Basename = id.Basename
		s.Avatar = id.Avatar
	})
}

// SetFrameReady tells the host the app is ready to display. It runs once;
// a host error still marks the frame ready.
func (m *Manager) SetFrameReady(ctx context.Context) {
	m.mu.Lock()
	ready := m.state.FrameReady
	m.mu.Unlock()
	if ready {
		return
	}

	if err := m.host.Ready(ctx); err != nil {
		m.logger.WarnContext(ctx, "session: host ready failed", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.state.FrameReady = true
	m.publishLocked()
	m.mu.Unlock()
}

// OpenURL opens url through the host.
func (m *Manager) OpenURL(ctx context.Context, url string) error {
	return m.host.OpenURL(ctx, url)
}

// Close asks the host to close the app. Errors are logged only.
func (m *Manager) Close(ctx context.Context) {
	if err := m.host.Close(ctx); err != nil {
		m.logger.DebugContext(ctx, "session: host close failed", slog.String("error", err.Error()))
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that receives the current state and then the
// latest state after every change. Slow readers only see the newest
// snapshot. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
			m.mu.Unlock()
		})
	}
}

// Wait blocks until in-flight background refreshes finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels background refreshes, waits for them and closes every
// subscription.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

// adopt records address as connected on chain. A new address bumps the
// generation, clears derived data and starts the three refreshes.
// Reconnecting the address already held, including from the connecting
// status Connect sets, keeps the data and refreshes in flight.
func (m *Manager) adopt(address string, chain int64) {
	m.mu.Lock()
	held := m.state.Address != "" &&
		(m.state.Status == StatusConnected || m.state.Status == StatusConnecting)
	changed := !held || !strings.EqualFold(m.state.Address, address)
	if changed {
		gen := m.state.Generation + 1
		ready := m.state.FrameReady
		m.state = m.emptyState()
		m.state.FrameReady = ready
		m.state.Generation = gen
	}
	m.state.Status = StatusConnected
	m.state.Address = address
	m.state.ChainID = chain
	m.publishLocked()
	m.mu.Unlock()

	if changed {
		m.refreshAll()
	}
}

// refreshAll starts the balance, portfolio and identity refreshes
// independently of each other.
func (m *Manager) refreshAll() {
	for _, refresh := range []func(context.Context) bool{
		m.RefreshBalances,
		m.RefreshPortfolio,
		m.RefreshIdentity,
	} {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(m.ctx, m.refreshTimeout)
			defer cancel()
			refresh(ctx)
		}()
	}
}

func (m *Manager) current() (string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Address, m.state.Generation, m.state.Connected()
}

// apply mutates the state unless the generation moved on since gen.
func (m *Manager) apply(gen uint64, what string, mutate func(*State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Generation != gen || !m.state.Connected() {
		m.logger.Debug("session: discarding stale refresh",
			slog.String("refresh", what),
			slog.Uint64("generation", gen),
		)
		return false
	}
	mutate(&m.state)
	m.publishLocked()
	return true
}

func (m *Manager) setSwitching(v bool) {
	m.mu.Lock()
	m.state.Switching = v
	m.publishLocked()
	m.mu.Unlock()
}

// publishLocked hands the current state to every subscriber, replacing any
// unread snapshot.
func (m *Manager) publishLocked() {
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- m.state:
		default:
		}
	}
}

// walletChain returns the wallet's current chain id, or 0 when unknown.
func (m *Manager) walletChain(ctx context.Context, w Wallet) int64 {
	raw, err := w.Request(ctx, "eth_chainId")
	if err != nil {
		m.logger.DebugContext(ctx, "session: eth_chainId failed", slog.String("error", err.Error()))
		return 0
	}
	id, err := decodeChainID(raw)
	if err != nil {
		m.logger.DebugContext(ctx, "session: eth_chainId undecodable", slog.String("error", err.Error()))
		return 0
	}
	return id
}

func requestAccounts(ctx context.Context, w Wallet, method string) ([]string, error) {
	raw, err := w.Request(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", method, err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", method, err)
	}
	return accounts, nil
}

func decodeChainID(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseChainID(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("session: decode chain id: %w", err)
	}
	return n, nil
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

func baseChainParams() addChainParams {
	return addChainParams{
		ChainID:           ChainHex(TargetChainID),
		ChainName:         "Base",
		NativeCurrency:    nativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:           []string{"https://mainnet.base.org"},
		BlockExplorerURLs: []string{"https://basescan.org"},
	}
}

// switchChain asks w to switch to chainID. With allowAdd, an unrecognised
// target chain is added and the switch retried once.
func switchChain(ctx context.Context, w Wallet, chainID int64, allowAdd bool) error {
	params := map[string]string{"chainId": ChainHex(chainID)}
	_, err := w.Request(ctx, "wallet_switchEthereumChain", params)
	if err == nil {
		return nil
	}
	if !allowAdd || chainID != TargetChainID || rpcCode(err) != CodeUnrecognizedChain {
		return err
	}
	if _, err := w.Request(ctx, "wallet_addEthereumChain", baseChainParams()); err != nil {
		return err
	}
	_, err = w.Request(ctx, "wallet_switchEthereumChain", params)
	return err
}
