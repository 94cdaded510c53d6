// Package gate admits requests whose bearer credential maps to an active local user.
package gate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"messenger/internal/domain"
	"messenger/internal/httpx"
	"messenger/internal/idp"
	"messenger/internal/observability/metrics"
	obsmw "messenger/internal/observability/middleware"
	"messenger/internal/store"
)

type userLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
}

type Gate struct {
	idp         idp.Bridge
	users       userLookup
	strictEpoch bool
}

// New builds a Gate. With strictEpoch the credential's session claim must not be
// older than the user's current epoch.
func New(bridge idp.Bridge, users userLookup, strictEpoch bool) *Gate {
	return &Gate{idp: bridge, users: users, strictEpoch: strictEpoch}
}

// Authorize resolves the user behind an Authorization header value.
func (g *Gate) Authorize(ctx context.Context, rawHeader string) (*domain.User, error) {
	token, ok := BearerToken(rawHeader)
	if !ok {
		return nil, g.reject(ctx, "missing_token", domain.ErrMissingToken, nil)
	}
	return g.AuthorizeToken(ctx, token)
}

// AuthorizeToken is Authorize for a bare token, as sent by websocket clients.
func (g *Gate) AuthorizeToken(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, g.reject(ctx, "missing_token", domain.ErrMissingToken, nil)
	}
	vc, err := g.idp.VerifyBearerCredential(ctx, token)
	if err != nil {
		return nil, g.reject(ctx, "invalid_token", domain.ErrInvalidSession, err)
	}
	u, err := g.users.GetByExternalID(ctx, vc.IdentityID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, g.reject(ctx, "store_error", domain.Upstream("Store unavailable", err), err)
		}
		return nil, g.reject(ctx, "unknown_user", domain.ErrInvalidSession, nil)
	}
	if !u.IsActive {
		return nil, g.reject(ctx, "inactive", domain.ErrInvalidSession, nil)
	}
	if g.strictEpoch && (!vc.HasClaim || vc.ClaimEpoch < u.SessionEpoch) {
		return nil, g.reject(ctx, "stale_epoch", domain.ErrInvalidSession, nil)
	}
	metrics.GateDecisionsTotal.WithLabelValues("admit").Inc()
	return u, nil
}

func (g *Gate) reject(ctx context.Context, reason string, out error, cause error) error {
	metrics.GateDecisionsTotal.WithLabelValues(reason).Inc()
	obsmw.Logger(ctx).Debug("gate rejected request", "reason", reason, "err", cause)
	return out
}

// Middleware admits the request and stores the user in its context, or writes the rejection.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := g.Authorize(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// BearerToken extracts the token from "Bearer <token>", case-insensitively.
func BearerToken(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	const prefix = "bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(raw[len(prefix):])
	return tok, tok != ""
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFrom(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*domain.User)
	return u, ok && u != nil
}
