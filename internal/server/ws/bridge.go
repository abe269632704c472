package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minidict/minidict/internal/session"
)

var (
	errBridgeClosed = errors.New("ws: bridge closed")
	errNoSession    = errors.New("ws: hello required")
)

type rpcReply struct {
	result json.RawMessage
	err    error
}

// bridge is one browser connection and the session it drives. Wallet
// requests issued by the session are relayed to the browser as rpc messages
// and answered with rpc_result.
type bridge struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[uint64]chan rpcReply
	manager *session.Manager
	nextID  atomic.Uint64

	logger *slog.Logger
}

func newBridge(h *Hub, conn *websocket.Conn) *bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &bridge{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]chan rpcReply),
		logger:  h.logger,
	}
}

// close stops both pumps. The read pump finishes the teardown.
func (b *bridge) close() {
	b.cancel()
	b.conn.Close()
}

// readPump reads browser messages until the connection fails, then tears
// the session down.
func (b *bridge) readPump() {
	defer func() {
		b.cancel()
		if m := b.session(); m != nil {
			m.Shutdown()
		}
		b.hub.release(b)
		b.conn.Close()
	}()

	b.conn.SetReadLimit(maxMessageSize)
	b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			b.enqueue(outbound{Type: msgError, Error: "invalid message"})
			continue
		}
		b.dispatch(msg)
	}
}

func (b *bridge) dispatch(msg inbound) {
	switch msg.Type {
	case msgHello:
		b.hello(msg)
	case msgRPCResult:
		b.resolve(msg)
	case msgEvent:
		b.event(msg)
	case msgCommand:
		m := b.session()
		if m == nil {
			b.enqueue(outbound{Type: msgError, Command: msg.Command, Error: errNoSession.Error()})
			return
		}
		// Commands can wait on wallet prompts, which are answered through
		// this read loop.
		go b.command(m, msg)
	default:
		b.enqueue(outbound{Type: msgError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// hello creates the session for the declared host. Repeated hellos are
// ignored.
func (b *bridge) hello(msg inbound) {
	b.mu.Lock()
	if b.manager != nil {
		b.mu.Unlock()
		return
	}

	var wallet session.Wallet
	if msg.Wallet {
		wallet = remoteWallet{b: b}
	}
	var host session.Host
	if msg.Host == "frame" && msg.Frame != nil {
		host = session.NewFrameHost(*msg.Frame, wallet, frameActions{b: b})
	} else {
		host = session.NewBrowserHost(wallet, func(_ context.Context, url string) error {
			return b.enqueue(outbound{Type: msgAction, Action: actionOpenURL, URL: url})
		})
	}
	m := session.NewManager(host, b.hub.deps)
	b.manager = m
	b.mu.Unlock()

	states, unsubscribe := m.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case s, ok := <-states:
				if !ok {
					return
				}
				b.enqueue(outbound{Type: msgState, State: &s})
			case <-b.ctx.Done():
				return
			}
		}
	}()

	go m.Start(b.ctx)
}

func (b *bridge) session() *session.Manager {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.manager
}

func (b *bridge) resolve(msg inbound) {
	b.mu.Lock()
	ch, ok := b.pending[msg.ID]
	delete(b.pending, msg.ID)
	b.mu.Unlock()
	if !ok {
		return
	}

	reply := rpcReply{result: msg.Result}
	if msg.Error != nil {
		reply.err = msg.Error
	}
	if len(reply.result) == 0 {
		reply.result = json.RawMessage("null")
	}
	ch <- reply
}

func (b *bridge) event(msg inbound) {
	m := b.session()
	if m == nil {
		b.enqueue(outbound{Type: msgError, Error: errNoSession.Error()})
		return
	}
	switch msg.Event {
	case eventAccountsChanged:
		m.HandleAccountsChanged(msg.Accounts)
	case eventChainChanged:
		if err := m.HandleChainChanged(string(msg.ChainID)); err != nil {
			b.enqueue(outbound{Type: msgError, Error: err.Error()})
		}
	}
}

func (b *bridge) command(m *session.Manager, msg inbound) {
	ctx := b.ctx
	var err error

	switch msg.Command {
	case cmdConnect:
		err = m.Connect(ctx)
	case cmdDisconnect:
		m.Disconnect()
	case cmdSwitchChain:
		var id int64
		if id, err = session.ParseChainID(string(msg.ChainID)); err == nil {
			err = m.SwitchChain(ctx, id)
		}
	case cmdRefresh:
		switch msg.What {
		case "balances":
			m.RefreshBalances(ctx)
		case "portfolio":
			m.RefreshPortfolio(ctx)
		case "identity":
			m.RefreshIdentity(ctx)
		default:
			m.RefreshBalances(ctx)
			m.RefreshPortfolio(ctx)
			m.RefreshIdentity(ctx)
		}
	case cmdFrameReady:
		m.SetFrameReady(ctx)
	case cmdOpenURL:
		err = m.OpenURL(ctx, msg.URL)
	case cmdClose:
		m.Close(ctx)
	default:
		err = fmt.Errorf("unknown command %q", msg.Command)
	}

	if err != nil {
		b.enqueue(outbound{Type: msgError, ID: msg.ID, Command: msg.Command, Error: err.Error()})
		return
	}
	b.enqueue(outbound{Type: msgAck, ID: msg.ID, Command: msg.Command})
}

// enqueue hands a message to the write pump.
func (b *bridge) enqueue(msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ws: encode %s: %w", msg.Type, err)
	}
	select {
	case b.send <- data:
		return nil
	case <-b.ctx.Done():
		return errBridgeClosed
	}
}

// request relays a wallet request to the browser and waits for its answer.
func (b *bridge) request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := b.nextID.Add(1)
	ch := make(chan rpcReply, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.enqueue(outbound{Type: msgRPC, ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.hub.rpcTimeout)
	defer cancel()
	select {
	case reply := <-ch:
		return reply.result, reply.err
	case <-ctx.Done():
		return nil, fmt.Errorf("ws: %s: %w", method, ctx.Err())
	case <-b.ctx.Done():
		return nil, errBridgeClosed
	}
}

// writePump pumps queued messages to the connection and sends periodic
// pings for keepalive.
func (b *bridge) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		b.conn.Close()
	}()

	for {
		select {
		case data := <-b.send:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-b.ctx.Done():
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			b.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// remoteWallet is the browser's wallet provider seen through the bridge.
type remoteWallet struct {
	b *bridge
}

func (w remoteWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return w.b.request(ctx, method, params)
}

// frameActions forwards mini-app SDK actions to the browser.
type frameActions struct {
	b *bridge
}

func (a frameActions) Ready(context.Context) error {
	return a.b.enqueue(outbound{Type: msgAction, Action: actionReady})
}

func (a frameActions) OpenURL(_ context.Context, url string) error {
	return a.b.enqueue(outbound{Type: msgAction, Action: actionOpenURL, URL: url})
}

func (a frameActions) Close(context.Context) error {
	return a.b.enqueue(outbound{Type: msgAction, Action: actionClose})
}
