package session

import (
	"context"
	"encoding/json"
	"errors"
)

// Wallet is an EIP-1193 style provider.
type Wallet interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Host is the environment the app runs in. It is chosen once per session.
type Host interface {
	// Wallet returns the host's wallet provider, or nil.
	Wallet() Wallet
	// Frame returns the in-frame user context, or nil outside a frame.
	Frame() *FrameUser
	Ready(ctx context.Context) error
	OpenURL(ctx context.Context, url string) error
	Close(ctx context.Context) error
}

// FrameActions are the mini-app SDK actions of an in-frame host.
type FrameActions interface {
	Ready(ctx context.Context) error
	OpenURL(ctx context.Context, url string) error
	Close(ctx context.Context) error
}

// FrameHost runs inside a Farcaster client.
type FrameHost struct {
	user    FrameUser
	wallet  Wallet
	actions FrameActions
}

var _ Host = (*FrameHost)(nil)

// NewFrameHost creates a FrameHost. wallet may be nil when the client
// exposes no wallet provider.
func NewFrameHost(user FrameUser, wallet Wallet, actions FrameActions) *FrameHost {
	return &FrameHost{user: user, wallet: wallet, actions: actions}
}

func (h *FrameHost) Wallet() Wallet { return h.wallet }

func (h *FrameHost) Frame() *FrameUser {
	u := h.user
	return &u
}

func (h *FrameHost) Ready(ctx context.Context) error { return h.actions.Ready(ctx) }

func (h *FrameHost) OpenURL(ctx context.Context, url string) error {
	return h.actions.OpenURL(ctx, url)
}

func (h *FrameHost) Close(ctx context.Context) error { return h.actions.Close(ctx) }

// URLOpener opens a URL outside the app.
type URLOpener func(ctx context.Context, url string) error

// BrowserHost is a standalone browser with an injected wallet.
type BrowserHost struct {
	wallet Wallet
	open   URLOpener
}

var _ Host = (*BrowserHost)(nil)

// NewBrowserHost creates a BrowserHost. wallet may be nil when no wallet is
// injected.
func NewBrowserHost(wallet Wallet, open URLOpener) *BrowserHost {
	return &BrowserHost{wallet: wallet, open: open}
}

func (h *BrowserHost) Wallet() Wallet { return h.wallet }

func (h *BrowserHost) Frame() *FrameUser { return nil }

func (h *BrowserHost) Ready(context.Context) error { return nil }

func (h *BrowserHost) OpenURL(ctx context.Context, url string) error {
	if h.open == nil {
		return errors.New("session: no url opener")
	}
	return h.open(ctx, url)
}

func (h *BrowserHost) Close(context.Context) error { return nil }
