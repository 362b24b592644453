// Package auth resolves bearer tokens to credentials and enforces scopes.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalsd/vitalsd/internal/cache"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/ratelimit"
	"github.com/vitalsd/vitalsd/internal/store"
)

// Kind classifies authentication failures for the HTTP mapping.
type Kind string

const (
	KindInvalid      Kind = "invalid"
	KindExpired      Kind = "expired"
	KindInactive     Kind = "inactive"
	KindUserInactive Kind = "user_inactive"
)

// Error is an authentication failure; all kinds map to 401.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string { return "authentication failed: " + string(e.Kind) }

// Scopes used by the service.
const (
	ScopeWriteHealth = "write:health_data"
	ScopeReadHealth  = "read:health_data"
	ScopeAdmin       = "admin"
)

// Principal is the resolved identity attached to a request.
type Principal struct {
	CredentialID   string   `json:"credential_id"`
	UserID         string   `json:"user_id"`
	Scopes         []string `json:"scopes"`
	RateLimitPerHr *int     `json:"rate_limit_per_hour,omitempty"`
}

// HasScope reports whether the principal holds the scope (or "*").
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Authenticator verifies bearer tokens against stored credentials, caching
// positive results. The limiter rides along so the middleware gets both from
// one place; it may be nil in tests.
type Authenticator struct {
	store   store.Store
	limiter *ratelimit.Limiter
	cache   *cache.Cache
	log     zerolog.Logger
	now     func() time.Time
}

// New builds an Authenticator. The cache may be the disabled no-op.
func New(st store.Store, limiter *ratelimit.Limiter, c *cache.Cache, log zerolog.Logger) *Authenticator {
	if c == nil {
		c = cache.NewDisabled()
	}
	return &Authenticator{store: st, limiter: limiter, cache: c, log: log, now: time.Now}
}

// Limiter exposes the rate limiter for the HTTP middleware.
func (a *Authenticator) Limiter() *ratelimit.Limiter { return a.limiter }

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// Authenticate resolves a bearer token. Two formats are accepted: an opaque
// vsd_-prefixed token verified via argon2id, or a legacy UUID credential id.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, &Error{Kind: KindInvalid}
	}

	cacheKey := a.cache.Key(cache.KindAuth, "token", tokenDigest(token))
	if raw, ok := a.cache.Get(ctx, cacheKey); ok {
		var p Principal
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			// A token hit counts only while the credential-keyed entry is
			// alive. Revoke deletes that entry, so revoked credentials stop
			// authenticating immediately instead of riding out the TTL.
			if _, live := a.cache.Get(ctx, a.cache.Key(cache.KindAuthKey, "cred", p.CredentialID)); live {
				a.touchLastUsed(p.CredentialID)
				return &p, nil
			}
			a.cache.Delete(ctx, cacheKey)
		}
	}

	cred, err := a.resolveCredential(ctx, token)
	if err != nil {
		return nil, err
	}

	if !cred.IsActive {
		return nil, &Error{Kind: KindInactive}
	}
	if cred.Expired(a.now()) {
		return nil, &Error{Kind: KindExpired}
	}
	user, err := a.store.Users().Get(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, &Error{Kind: KindInvalid}
		}
		return nil, fmt.Errorf("auth user lookup: %w", err)
	}
	if !user.IsActive {
		return nil, &Error{Kind: KindUserInactive}
	}

	p := &Principal{
		CredentialID:   cred.ID,
		UserID:         cred.UserID,
		Scopes:         cred.Scopes,
		RateLimitPerHr: cred.RateLimitPerHr,
	}
	if raw, err := json.Marshal(p); err == nil {
		a.cache.Set(ctx, cacheKey, string(raw), cache.TTLAuth)
		a.cache.Set(ctx, a.cache.Key(cache.KindAuthKey, "cred", cred.ID), string(raw), cache.TTLAuth)
	}
	a.touchLastUsed(cred.ID)
	return p, nil
}

func (a *Authenticator) resolveCredential(ctx context.Context, token string) (*model.Credential, error) {
	// Legacy UUID tokens are direct credential ids.
	if _, err := uuid.Parse(token); err == nil {
		cred, err := a.store.Credentials().GetByID(ctx, token)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, &Error{Kind: KindInvalid}
			}
			return nil, fmt.Errorf("auth credential lookup: %w", err)
		}
		return cred, nil
	}

	// Opaque tokens: verify argon2id against the active set. The positive
	// cache keeps this path off the hot loop.
	creds, err := a.store.Credentials().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth credential list: %w", err)
	}
	for _, cred := range creds {
		if VerifyKey(token, cred.KeyHash) {
			return cred, nil
		}
	}
	return nil, &Error{Kind: KindInvalid}
}

// touchLastUsed records credential use off the request path; failures are
// logged and never surface to the caller.
func (a *Authenticator) touchLastUsed(credentialID string) {
	at := a.now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.Credentials().TouchLastUsed(ctx, credentialID, at); err != nil {
			a.log.Warn().Err(err).Str("credential_id", credentialID).Msg("touch last_used failed")
		}
	}()
}

// Revoke deactivates a credential and drops its credential-keyed cache
// entry. Token-keyed entries require that entry to be live, so they die with
// it on the next lookup.
func (a *Authenticator) Revoke(ctx context.Context, credentialID string) error {
	if err := a.store.Credentials().Deactivate(ctx, credentialID); err != nil {
		return err
	}
	a.cache.Delete(ctx, a.cache.Key(cache.KindAuthKey, "cred", credentialID))
	return nil
}
