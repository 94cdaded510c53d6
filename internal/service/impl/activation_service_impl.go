package impl

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"messenger/internal/cache"
	"messenger/internal/domain"
	"messenger/internal/dto"
	"messenger/internal/idp"
	"messenger/internal/jwtsigner"
	"messenger/internal/observability/metrics"
	obsmw "messenger/internal/observability/middleware"
	"messenger/internal/service"
	"messenger/internal/store"

	"github.com/google/uuid"
)

const (
	msgActivationRequested = "If the account exists and is disabled, an activation link has been sent."
	msgActivated           = "Account activated successfully. Please login again."

	cooldownKeyPrefix = "activation:cooldown:"
)

type ActivationConfig struct {
	TTL           time.Duration
	Cooldown      time.Duration
	PublicBaseURL string
}

type ActivationServiceImpl struct {
	Store     dataStore
	IdP       idp.Bridge
	Signer    *jwtsigner.Signer
	Email     service.EmailService
	Cooldowns cache.Store
	Config    ActivationConfig
	Now       func() time.Time
}

func NewActivationServiceImpl(st *store.Store, bridge idp.Bridge, signer *jwtsigner.Signer, email service.EmailService, cooldowns cache.Store, cfg ActivationConfig) *ActivationServiceImpl {
	return &ActivationServiceImpl{
		Store:     gormStoreAdapter{store: st},
		IdP:       bridge,
		Signer:    signer,
		Email:     email,
		Cooldowns: cooldowns,
		Config:    cfg,
		Now:       time.Now,
	}
}

// RequestEnableAccount answers identically whether or not a link was issued.
func (a *ActivationServiceImpl) RequestEnableAccount(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", domain.ErrMissingFields
	}
	log := obsmw.Logger(ctx)

	ok, err := a.Cooldowns.SetIfAbsent(ctx, cooldownKeyPrefix+email, a.Config.Cooldown)
	if err != nil {
		log.Warn("activation cooldown unavailable", "err", err)
	} else if !ok {
		metrics.ActivationTokensTotal.WithLabelValues("issue", "throttled").Inc()
		return msgActivationRequested, nil
	}

	u, err := a.Store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrRecordNotFound) {
		return msgActivationRequested, nil
	}
	if err != nil {
		return "", storeErr(err)
	}
	if u.IsActive || !u.Linked() {
		return msgActivationRequested, nil
	}

	now := a.Now().UTC()
	tok := &domain.ActivationToken{
		ID:        uuid.New(),
		UserID:    u.ID,
		ExpiresAt: now.Add(a.Config.TTL),
		CreatedAt: now,
	}
	if err := a.Store.ActivationTokens().Create(ctx, tok); err != nil {
		return "", storeErr(err)
	}
	raw, err := a.Signer.SignActivation(jwtsigner.ActivationClaims{
		UserID:     u.ID.String(),
		IdentityID: u.ExternalID(),
		Email:      u.Email,
		TokenID:    tok.ID.String(),
		ExpiresAt:  tok.ExpiresAt,
	})
	if err != nil {
		return "", err
	}

	link := a.Config.PublicBaseURL + "/activate-account?token=" + url.QueryEscape(raw)
	if err := a.Email.SendActivationLink(ctx, u.Email, link); err != nil {
		log.Warn("activation link delivery failed", "user_id", u.ID, "err", err)
	}
	metrics.ActivationTokensTotal.WithLabelValues("issue", "ok").Inc()
	return msgActivationRequested, nil
}

func (a *ActivationServiceImpl) EnableAccountWithToken(ctx context.Context, raw string) (*dto.ActivationResponse, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrMissingActivation
	}
	u, tok, err := a.resolve(ctx, raw)
	if err != nil {
		metrics.ActivationTokensTotal.WithLabelValues("redeem", "rejected").Inc()
		return nil, err
	}

	if err := a.IdP.EnableIdentity(ctx, u.ExternalID()); err != nil {
		return nil, idpErr(err)
	}

	var epoch int64
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		if err := tx.ActivationTokens().Consume(ctx, tok.ID, a.Now().UTC()); err != nil {
			return err
		}
		var err error
		epoch, err = tx.Users().SetActive(ctx, u.ID, true)
		return err
	})
	if errors.Is(err, store.ErrConflict) {
		// A concurrent redemption of the same token won; its activation stands.
		metrics.ActivationTokensTotal.WithLabelValues("redeem", "rejected").Inc()
		return nil, domain.ErrInvalidActivation
	}
	if err != nil {
		cctx := context.WithoutCancel(ctx)
		logCompensation(cctx, "disable_identity", a.IdP.DisableIdentity(cctx, u.ExternalID()), "user_id", u.ID)
		return nil, storeErr(err)
	}

	if err := a.IdP.SetSessionClaim(ctx, u.ExternalID(), epoch); err != nil {
		obsmw.Logger(ctx).Warn("session claim push failed after activation", "user_id", u.ID, "err", err)
	}
	metrics.ActivationTokensTotal.WithLabelValues("redeem", "ok").Inc()
	return &dto.ActivationResponse{
		Success: true,
		Message: msgActivated,
		UserID:  u.ID.String(),
		Email:   u.Email,
	}, nil
}

// resolve checks the signed token and its stored row. Every mismatch is the same error.
func (a *ActivationServiceImpl) resolve(ctx context.Context, raw string) (*domain.User, *domain.ActivationToken, error) {
	claims, err := a.Signer.ParseActivation(raw)
	if err != nil {
		return nil, nil, domain.ErrInvalidActivation
	}
	tokenID, err := uuid.Parse(claims.TokenID)
	if err != nil {
		return nil, nil, domain.ErrInvalidActivation
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, nil, domain.ErrInvalidActivation
	}

	tok, err := a.Store.ActivationTokens().GetByID(ctx, tokenID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, nil, domain.ErrInvalidActivation
	}
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if tok.UserID != userID || !tok.Usable(a.Now()) {
		return nil, nil, domain.ErrInvalidActivation
	}

	u, err := a.Store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, nil, domain.ErrInvalidActivation
	}
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if !u.Linked() || (claims.IdentityID != "" && claims.IdentityID != u.ExternalID()) {
		return nil, nil, domain.ErrInvalidActivation
	}
	return u, tok, nil
}
