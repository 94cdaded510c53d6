package impl

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"messenger/internal/domain"
	"messenger/internal/dto"
	"messenger/internal/idp"
	"messenger/internal/observability/metrics"
	obsmw "messenger/internal/observability/middleware"
	"messenger/internal/service"
	"messenger/internal/store"
)

const (
	DirectionLocalToExternal = "local_to_external"
	DirectionExternalToLocal = "external_to_local"

	defaultIdentityPageSize = 1000
	defaultUserBatchSize    = 200
)

type SyncServiceImpl struct {
	Store     dataStore
	IdP       idp.Bridge
	Events    service.Publisher
	AdminKey  string
	PageSize  int
	BatchSize int
}

func NewSyncServiceImpl(st *store.Store, bridge idp.Bridge, pub service.Publisher, adminKey string) *SyncServiceImpl {
	return &SyncServiceImpl{
		Store:     gormStoreAdapter{store: st},
		IdP:       bridge,
		Events:    pub,
		AdminKey:  adminKey,
		PageSize:  defaultIdentityPageSize,
		BatchSize: defaultUserBatchSize,
	}
}

func (s *SyncServiceImpl) checkAdminKey(key string) error {
	if s.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.AdminKey)) != 1 {
		return domain.ErrInvalidAdminKey
	}
	return nil
}

// SyncUser repairs one identity on demand. The identifier is an email when it contains '@'.
func (s *SyncServiceImpl) SyncUser(ctx context.Context, uidOrEmail, adminKey string) (*dto.SyncUserResponse, error) {
	if err := s.checkAdminKey(adminKey); err != nil {
		return nil, err
	}
	ident := strings.TrimSpace(uidOrEmail)
	if ident == "" {
		return nil, domain.ErrMissingFields
	}
	byEmail := strings.Contains(ident, "@")
	if byEmail {
		ident = normalizeEmail(ident)
	}

	var found *idp.Identity
	var err error
	if byEmail {
		found, err = s.IdP.GetIdentityByEmail(ctx, ident)
	} else {
		found, err = s.IdP.GetIdentityByID(ctx, ident)
	}
	switch {
	case err == nil:
		return s.syncFound(ctx, found)
	case idp.IsNotFound(err):
		return s.syncMissing(ctx, ident, byEmail)
	default:
		return nil, idpErr(err)
	}
}

func (s *SyncServiceImpl) syncFound(ctx context.Context, ident *idp.Identity) (*dto.SyncUserResponse, error) {
	users := s.Store.Users()
	resp := &dto.SyncUserResponse{Status: dto.SyncStatusOK, ExternalIdentityID: ident.ID}

	u, err := users.GetByExternalID(ctx, ident.ID)
	if err == nil {
		resp.Action, resp.DBUserID, resp.Message = dto.SyncActionNone, u.ID.String(), "Already linked"
		return resp, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, storeErr(err)
	}

	if ident.Email != "" {
		u, err = users.GetByEmail(ctx, ident.Email)
		switch {
		case err == nil && u.Linked():
			return nil, domain.NewError(domain.KindConflict, "Local user is linked to a different external identity")
		case err == nil:
			if err := users.LinkExternalIdentity(ctx, u.ID, ident.ID); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return nil, domain.NewError(domain.KindConflict, "Local user is linked to a different external identity")
				}
				return nil, storeErr(err)
			}
			resp.Action, resp.DBUserID, resp.Message = dto.SyncActionLinked, u.ID.String(), "Linked existing local user"
			return resp, nil
		case !errors.Is(err, store.ErrRecordNotFound):
			return nil, storeErr(err)
		}
	}

	shadow := shadowUser(ident)
	if err := users.Create(ctx, shadow); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.KindConflict, "Shadow user collides with an existing user")
		}
		return nil, storeErr(err)
	}
	obsmw.Logger(ctx).Info("shadow user created", "user_id", shadow.ID, "external_identity_id", ident.ID)
	resp.Action, resp.DBUserID, resp.Message = dto.SyncActionCreated, shadow.ID.String(), "Created shadow user"
	return resp, nil
}

func (s *SyncServiceImpl) syncMissing(ctx context.Context, ident string, byEmail bool) (*dto.SyncUserResponse, error) {
	var u *domain.User
	var err error
	if byEmail {
		u, err = s.Store.Users().GetByEmail(ctx, ident)
		if err == nil && !u.Linked() {
			err = store.ErrRecordNotFound
		}
	} else {
		u, err = s.Store.Users().GetByExternalID(ctx, ident)
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		return &dto.SyncUserResponse{Status: dto.SyncStatusNotFound, Message: "No external identity and no linked local user"}, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}

	resp := &dto.SyncUserResponse{
		Status:             dto.SyncStatusOK,
		DBUserID:           u.ID.String(),
		ExternalIdentityID: u.ExternalID(),
	}
	if !u.IsActive {
		resp.Action, resp.Message = dto.SyncActionNone, "External identity missing; local user already inactive"
		return resp, nil
	}
	epoch, err := s.Store.Users().SetActive(ctx, u.ID, false)
	if err != nil {
		return nil, storeErr(err)
	}
	publishRevoked(s.Events, u, epoch, "identity_removed")
	resp.Action, resp.Message = dto.SyncActionDeactivated, "External identity missing; local user deactivated"
	return resp, nil
}

func shadowUser(ident *idp.Identity) *domain.User {
	handle := "shadow_" + ident.ID
	email := ident.Email
	if email == "" {
		email = handle + "@shadow.invalid"
	}
	externalID := ident.ID
	now := time.Now().UTC()
	return &domain.User{
		Email:              email,
		UserName:           handle,
		MobileNumber:       handle,
		FirstName:          "Shadow",
		LastName:           "User",
		ExternalIdentityID: &externalID,
		IsActive:           !ident.Disabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ReconcileLocalToExternal deactivates active local users whose external identity is gone.
// Lookup failures other than not-found skip the user.
func (s *SyncServiceImpl) ReconcileLocalToExternal(ctx context.Context) (dto.SweepReport, error) {
	report := dto.SweepReport{Direction: DirectionLocalToExternal}
	log := obsmw.Logger(ctx).With("direction", DirectionLocalToExternal)

	err := s.Store.Users().EachActiveLinked(ctx, s.BatchSize, func(batch []domain.User) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range batch {
			u := &batch[i]
			report.Checked++
			_, err := s.IdP.GetIdentityByID(ctx, u.ExternalID())
			if err == nil {
				continue
			}
			if !idp.IsNotFound(err) {
				report.Skipped++
				log.Warn("identity probe failed; skipping", "user_id", u.ID, "err", err)
				continue
			}
			epoch, err := s.Store.Users().SetActive(ctx, u.ID, false)
			if err != nil {
				report.Skipped++
				log.Warn("deactivation failed; skipping", "user_id", u.ID, "err", err)
				continue
			}
			report.Deactivated++
			metrics.DriftActionsTotal.WithLabelValues(DirectionLocalToExternal, "deactivated").Inc()
			publishRevoked(s.Events, u, epoch, "identity_removed")
			log.Info("deactivated user with missing external identity", "user_id", u.ID, "external_identity_id", u.ExternalID())
		}
		return nil
	})
	if err != nil {
		return report, storeErr(err)
	}
	return report, nil
}

// ReconcileExternalToLocal disables external identities that no local user references.
func (s *SyncServiceImpl) ReconcileExternalToLocal(ctx context.Context) (dto.SweepReport, error) {
	report := dto.SweepReport{Direction: DirectionExternalToLocal}
	log := obsmw.Logger(ctx).With("direction", DirectionExternalToLocal)

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		page, err := s.IdP.ListIdentities(ctx, s.PageSize, cursor)
		if err != nil {
			return report, idpErr(err)
		}
		for _, ident := range page.Identities {
			report.Checked++
			exists, err := s.Store.Users().ExistsByExternalID(ctx, ident.ID)
			if err != nil {
				report.Skipped++
				log.Warn("local lookup failed; skipping", "external_identity_id", ident.ID, "err", err)
				continue
			}
			if exists || ident.Disabled {
				continue
			}
			if err := s.IdP.DisableIdentity(ctx, ident.ID); err != nil {
				report.Skipped++
				log.Warn("disable orphan identity failed", "external_identity_id", ident.ID, "err", err)
				continue
			}
			report.Disabled++
			metrics.DriftActionsTotal.WithLabelValues(DirectionExternalToLocal, "disabled").Inc()
			log.Info("disabled orphan external identity", "external_identity_id", ident.ID)
		}
		if page.NextCursor == "" {
			return report, nil
		}
		cursor = page.NextCursor
	}
}

func (s *SyncServiceImpl) RunSweep(ctx context.Context, adminKey string) ([]dto.SweepReport, error) {
	if err := s.checkAdminKey(adminKey); err != nil {
		return nil, err
	}
	return s.Sweep(ctx)
}

// Sweep runs both directions and prunes expired activation tokens; a failing step does not stop the others.
func (s *SyncServiceImpl) Sweep(ctx context.Context) ([]dto.SweepReport, error) {
	l2e, err1 := s.ReconcileLocalToExternal(ctx)
	e2l, err2 := s.ReconcileExternalToLocal(ctx)
	return []dto.SweepReport{l2e, e2l}, errors.Join(err1, err2, s.pruneActivationTokens(ctx))
}

func (s *SyncServiceImpl) pruneActivationTokens(ctx context.Context) error {
	n, err := s.Store.ActivationTokens().DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		obsmw.Logger(ctx).Error("pruning activation tokens failed", "err", err)
		return err
	}
	if n > 0 {
		obsmw.Logger(ctx).Info("pruned expired activation tokens", "count", n)
	}
	return nil
}
