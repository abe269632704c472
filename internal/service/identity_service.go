package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/evm"
	"github.com/minidict/minidict/internal/platform/identity"
)

// BaseL2Resolver is the Basenames public resolver on Base.
const BaseL2Resolver = "0xC6d566A56A1aFf6508b41f6c90ff131615583BCD"

// PlaceholderAvatar returns the generated avatar URL for address.
func PlaceholderAvatar(address string) string {
	return fmt.Sprintf("https://effigy.im/a/%s.png", address)
}

// ProfileSource returns the linked identity profiles of an address.
type ProfileSource interface {
	Profiles(ctx context.Context, address string) ([]identity.Profile, error)
}

// TextResolver reads ENS-style text records.
type TextResolver interface {
	TextRecord(ctx context.Context, resolver string, node common.Hash, key string) (string, error)
}

// IdentityService resolves a wallet address to a display name and avatar.
type IdentityService struct {
	profiles ProfileSource
	text     TextResolver
	cache    *responseCache
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewIdentityService creates an IdentityService. text may be nil, in which
// case Basenames without a profile avatar fall back to the placeholder.
func NewIdentityService(profiles ProfileSource, text TextResolver, cache domain.Cache, ttl, timeout time.Duration, logger *slog.Logger) *IdentityService {
	logger = logger.With(slog.String("component", "identity_service"))
	return &IdentityService{
		profiles: profiles,
		text:     text,
		cache:    newResponseCache(cache, logger),
		ttl:      ttl,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve returns the identity of address. Any failure yields the
// placeholder avatar and a nil basename.
func (s *IdentityService) Resolve(ctx context.Context, address string) domain.Identity {
	key := "identity:" + strings.ToLower(address)
	id, err := cached(ctx, s.cache, key, s.ttl, func(ctx context.Context) (domain.Identity, error) {
		return s.resolve(ctx, address)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "identity_service: resolve failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return domain.Identity{Avatar: PlaceholderAvatar(address)}
	}
	return id
}

func (s *IdentityService) resolve(ctx context.Context, address string) (domain.Identity, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	profiles, err := s.profiles.Profiles(ctx, address)
	if err != nil {
		return domain.Identity{}, err
	}

	placeholder := PlaceholderAvatar(address)
	orPlaceholder := func(avatar string) string {
		if avatar != "" {
			return avatar
		}
		return placeholder
	}

	if p, ok := findPlatform(profiles, identity.PlatformBasenames); ok {
		name := profileName(p)
		avatar := p.Avatar
		if avatar == "" && name != nil {
			avatar = s.onChainAvatar(ctx, *name)
		}
		return domain.Identity{Basename: name, Avatar: orPlaceholder(avatar)}, nil
	}
	if p, ok := findPlatform(profiles, identity.PlatformENS); ok {
		return domain.Identity{Basename: profileName(p), Avatar: orPlaceholder(p.Avatar)}, nil
	}
	if p, ok := findPlatform(profiles, identity.PlatformFarcaster); ok {
		return domain.Identity{Avatar: orPlaceholder(p.Avatar)}, nil
	}
	for _, p := range profiles {
		if p.Avatar != "" {
			return domain.Identity{Avatar: p.Avatar}, nil
		}
	}
	return domain.Identity{Avatar: placeholder}, nil
}

// onChainAvatar reads the avatar text record of a Basename. Failures are
// logged and yield "".
func (s *IdentityService) onChainAvatar(ctx context.Context, name string) string {
	if s.text == nil {
		return ""
	}
	avatar, err := s.text.TextRecord(ctx, BaseL2Resolver, evm.Namehash(name), "avatar")
	if err != nil {
		s.logger.DebugContext(ctx, "identity_service: avatar record lookup failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return avatar
}

func findPlatform(profiles []identity.Profile, platform string) (identity.Profile, bool) {
	for _, p := range profiles {
		if p.Platform == platform {
			return p, true
		}
	}
	return identity.Profile{}, false
}

func profileName(p identity.Profile) *string {
	name := p.Identity
	if name == "" {
		name = p.DisplayName
	}
	if name == "" {
		return nil
	}
	return &name
}
