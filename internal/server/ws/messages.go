package ws

import (
	"encoding/json"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/session"
)

// Inbound message types (browser to server).
const (
	msgHello     = "hello"
	msgRPCResult = "rpc_result"
	msgEvent     = "event"
	msgCommand   = "command"
)

// Outbound message types (server to browser).
const (
	msgRPC    = "rpc"
	msgAction = "action"
	msgState  = "state"
	msgAck    = "ack"
	msgError  = "error"
)

// Wallet events relayed by the browser.
const (
	eventAccountsChanged = "accountsChanged"
	eventChainChanged    = "chainChanged"
)

// Commands the browser can issue.
const (
	cmdConnect     = "connect"
	cmdDisconnect  = "disconnect"
	cmdSwitchChain = "switch_chain"
	cmdRefresh     = "refresh"
	cmdFrameReady  = "frame_ready"
	cmdOpenURL     = "open_url"
	cmdClose       = "close"
)

// Host actions pushed to the browser.
const (
	actionReady   = "ready"
	actionOpenURL = "open_url"
	actionClose   = "close"
)

// inbound is any message read from the browser. Fields are populated
// according to Type.
type inbound struct {
	Type string `json:"type"`
	ID   uint64 `json:"id,omitempty"`

	// hello
	Host   string             `json:"host,omitempty"`
	Wallet bool               `json:"wallet,omitempty"`
	Frame  *session.FrameUser `json:"frame,omitempty"`

	// rpc_result
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *session.RPCError `json:"error,omitempty"`

	// event
	Event    string   `json:"event,omitempty"`
	Accounts []string `json:"accounts,omitempty"`

	// event and command
	ChainID domain.FlexString `json:"chainId,omitempty"`

	// command
	Command string `json:"command,omitempty"`
	What    string `json:"what,omitempty"`
	URL     string `json:"url,omitempty"`
}

// outbound is any message written to the browser.
type outbound struct {
	Type    string         `json:"type"`
	ID      uint64         `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  []any          `json:"params,omitempty"`
	Action  string         `json:"action,omitempty"`
	URL     string         `json:"url,omitempty"`
	State   *session.State `json:"state,omitempty"`
	Command string         `json:"command,omitempty"`
	Error   string         `json:"error,omitempty"`
}
