package impl

import (
	"context"
	"errors"
	"strings"
	"time"

	"messenger/internal/domain"
	"messenger/internal/dto"
	"messenger/internal/events"
	"messenger/internal/idp"
	"messenger/internal/observability/metrics"
	obsmw "messenger/internal/observability/middleware"
	"messenger/internal/service"
	"messenger/internal/store"
)

const msgPasswordResetSent = "If an account exists for this email, a password reset link has been sent."

type IdentityServiceImpl struct {
	Store  dataStore
	IdP    idp.Bridge
	Email  service.EmailService
	Events service.Publisher
}

func NewIdentityServiceImpl(st *store.Store, bridge idp.Bridge, email service.EmailService, pub service.Publisher) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		Store:  gormStoreAdapter{store: st},
		IdP:    bridge,
		Email:  email,
		Events: pub,
	}
}

func (s *IdentityServiceImpl) Register(ctx context.Context, r dto.RegisterRequest) (*dto.UserResponse, error) {
	email := normalizeEmail(r.Email)
	userName := strings.TrimSpace(r.UserName)
	mobile := strings.TrimSpace(r.MobileNumber)
	first := strings.TrimSpace(r.FirstName)
	last := strings.TrimSpace(r.LastName)
	if email == "" || userName == "" || mobile == "" || first == "" || last == "" || r.Password == "" {
		return nil, domain.ErrMissingFields
	}
	if r.Password != r.ConfirmPassword {
		return nil, domain.ErrPasswordMismatch
	}
	if len(r.Password) < minPasswordLength {
		return nil, domain.ErrPasswordLength
	}

	if _, err := s.Store.Users().FindConflicting(ctx, email, userName, mobile); err == nil {
		metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, storeErr(err)
	}

	// An ALREADY_EXISTS identity has no local user, so it is an orphan from an earlier
	// failed registration. Adopt it under the new password and re-enable it if the sweep disabled it.
	externalID, created, reenabled := "", false, false
	id, err := s.IdP.CreateIdentity(ctx, email, r.Password)
	switch {
	case err == nil:
		externalID, created = id, true
	case idp.IsAlreadyExists(err):
		ident, gerr := s.IdP.GetIdentityByEmail(ctx, email)
		if gerr != nil {
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
			return nil, idpErr(gerr)
		}
		externalID = ident.ID
		if err := s.IdP.UpdateSecret(ctx, externalID, r.Password); err != nil {
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
			return nil, idpErr(err)
		}
		if ident.Disabled {
			if err := s.IdP.EnableIdentity(ctx, externalID); err != nil {
				metrics.RegistrationsTotal.WithLabelValues("error").Inc()
				return nil, idpErr(err)
			}
			reenabled = true
		}
		obsmw.Logger(ctx).Info("adopting existing external identity",
			"external_identity_id", externalID, "reenabled", reenabled)
	default:
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, idpErr(err)
	}

	now := time.Now().UTC()
	u := &domain.User{
		Email:              email,
		UserName:           userName,
		MobileNumber:       mobile,
		FirstName:          first,
		MiddleName:         trimmedOrNil(r.MiddleName),
		LastName:           last,
		Password:           nil,
		ExternalIdentityID: &externalID,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Store.Users().Create(ctx, u); err != nil {
		cctx := context.WithoutCancel(ctx)
		switch {
		case created:
			logCompensation(cctx, "delete_identity", s.IdP.DeleteIdentity(cctx, externalID), "external_identity_id", externalID)
		case reenabled:
			// Re-disable only; the orphan's previous secret cannot be restored.
			logCompensation(cctx, "disable_identity", s.IdP.DisableIdentity(cctx, externalID), "external_identity_id", externalID)
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
			return nil, domain.ErrUserExists
		}
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, storeErr(err)
	}

	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	out := dto.NewUserResponse(u)
	return &out, nil
}

func (s *IdentityServiceImpl) Login(ctx context.Context, r dto.LoginRequest) (*dto.LoginResponse, error) {
	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		return nil, domain.ErrMissingFields
	}

	res, err := s.IdP.SignInWithSecret(ctx, email, r.Password)
	switch {
	case err == nil:
	case idp.IsUserDisabled(err):
		metrics.LoginsTotal.WithLabelValues("disabled").Inc()
		return nil, domain.ErrAccountDisabled
	case idp.IsInvalidCredentials(err):
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	default:
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, idpErr(err)
	}

	u, err := s.Store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrRecordNotFound) {
		metrics.LoginsTotal.WithLabelValues("not_registered").Inc()
		return nil, domain.ErrNotRegistered
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if !u.IsActive {
		metrics.LoginsTotal.WithLabelValues("inactive").Inc()
		return nil, domain.ErrInvalidSession
	}

	if err := s.ensureLinked(ctx, u, res.IdentityID); err != nil {
		metrics.LoginsTotal.WithLabelValues("mismatch").Inc()
		return nil, err
	}

	epoch, err := s.Store.Users().BumpEpoch(ctx, u.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	u.SessionEpoch = epoch
	if err := s.IdP.SetSessionClaim(ctx, res.IdentityID, epoch); err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, idpErr(err)
	}
	// The sign-in token predates the claim push; re-mint so the caller holds the new epoch.
	bearer, err := s.IdP.RefreshBearerCredential(ctx, res.RefreshToken)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, idpErr(err)
	}

	s.revokeSockets(u, epoch, "login")
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return &dto.LoginResponse{
		AccessToken:  bearer,
		RefreshToken: res.RefreshToken,
		User:         dto.NewUserResponse(u),
	}, nil
}

// ensureLinked links u to externalID on first login and refuses a different existing link.
func (s *IdentityServiceImpl) ensureLinked(ctx context.Context, u *domain.User, externalID string) error {
	if u.Linked() {
		if u.ExternalID() != externalID {
			obsmw.Logger(ctx).Warn("external identity mismatch", "user_id", u.ID, "linked", u.ExternalID(), "presented", externalID)
			return domain.ErrIdentityMismatch
		}
		return nil
	}
	err := s.Store.Users().LinkExternalIdentity(ctx, u.ID, externalID)
	if errors.Is(err, store.ErrConflict) {
		// Someone linked it concurrently; accept only the same identity.
		fresh, gerr := s.Store.Users().GetByID(ctx, u.ID)
		if gerr != nil {
			return storeErr(gerr)
		}
		if fresh.ExternalID() != externalID {
			return domain.ErrIdentityMismatch
		}
		*u = *fresh
		return nil
	}
	if errors.Is(err, store.ErrDuplicateKey) {
		return domain.ErrIdentityMismatch
	}
	if err != nil {
		return storeErr(err)
	}
	u.ExternalIdentityID = &externalID
	return nil
}

func (s *IdentityServiceImpl) Logout(ctx context.Context, userID domain.UserID) error {
	u, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return storeErr(err)
	}
	if !u.Linked() {
		return domain.ErrNotLinked
	}
	epoch, err := s.Store.Users().BumpEpoch(ctx, u.ID)
	if err != nil {
		return storeErr(err)
	}
	if err := s.IdP.SetSessionClaim(ctx, u.ExternalID(), epoch); err != nil {
		return idpErr(err)
	}
	s.revokeSockets(u, epoch, "logout")
	return nil
}

func (s *IdentityServiceImpl) UpdateProfile(ctx context.Context, userID domain.UserID, r dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	fields := map[string]any{}
	for col, v := range map[string]*string{
		"first_name":    r.FirstName,
		"last_name":     r.LastName,
		"user_name":     r.UserName,
		"mobile_number": r.MobileNumber,
	} {
		if v == nil {
			continue
		}
		t := strings.TrimSpace(*v)
		if t == "" {
			return nil, domain.ErrMissingFields
		}
		fields[col] = t
	}
	if r.MiddleName != nil {
		if m := trimmedOrNil(r.MiddleName); m != nil {
			fields["middle_name"] = *m
		} else {
			fields["middle_name"] = nil
		}
	}

	if err := s.Store.Users().UpdateProfile(ctx, userID, fields); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.ErrProfileConflict
		}
		return nil, storeErr(err)
	}
	return s.Me(ctx, userID)
}

func (s *IdentityServiceImpl) UpdatePassword(ctx context.Context, userID domain.UserID, r dto.UpdatePasswordRequest) error {
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return domain.ErrMissingFields
	}
	if len(r.NewPassword) < minPasswordLength {
		return domain.ErrPasswordLength
	}
	u, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return storeErr(err)
	}
	if !u.Linked() {
		return domain.ErrNotLinked
	}

	res, err := s.IdP.SignInWithSecret(ctx, u.Email, r.CurrentPassword)
	switch {
	case err == nil:
	case idp.IsInvalidCredentials(err):
		return domain.ErrWrongPassword
	case idp.IsUserDisabled(err):
		return domain.ErrAccountDisabled
	default:
		return idpErr(err)
	}
	if res.IdentityID != u.ExternalID() {
		return domain.ErrIdentityMismatch
	}

	if err := s.IdP.UpdateSecret(ctx, u.ExternalID(), r.NewPassword); err != nil {
		return idpErr(err)
	}
	if err := s.Store.Users().ClearPassword(ctx, u.ID); err != nil {
		cctx := context.WithoutCancel(ctx)
		logCompensation(cctx, "restore_secret", s.IdP.UpdateSecret(cctx, u.ExternalID(), r.CurrentPassword), "user_id", u.ID)
		return storeErr(err)
	}
	return nil
}

func (s *IdentityServiceImpl) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", domain.ErrMissingFields
	}
	link, err := s.IdP.GeneratePasswordResetLink(ctx, email)
	if idp.IsNotFound(err) {
		return msgPasswordResetSent, nil
	}
	if err != nil {
		return "", idpErr(err)
	}
	if err := s.Email.SendPasswordReset(ctx, email, link); err != nil {
		obsmw.Logger(ctx).Warn("password reset delivery failed", "err", err)
	}
	return msgPasswordResetSent, nil
}

func (s *IdentityServiceImpl) DisableAccount(ctx context.Context, userID domain.UserID) error {
	u, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return storeErr(err)
	}
	if u.Linked() {
		if err := s.IdP.DisableIdentity(ctx, u.ExternalID()); err != nil {
			return idpErr(err)
		}
	}
	epoch, err := s.Store.Users().SetActive(ctx, u.ID, false)
	if err != nil {
		if u.Linked() {
			cctx := context.WithoutCancel(ctx)
			logCompensation(cctx, "enable_identity", s.IdP.EnableIdentity(cctx, u.ExternalID()), "user_id", u.ID)
		}
		return storeErr(err)
	}
	if u.Linked() {
		// Local state is committed and the identity is disabled; a lagging claim is tolerated.
		if err := s.IdP.SetSessionClaim(ctx, u.ExternalID(), epoch); err != nil {
			obsmw.Logger(ctx).Warn("session claim push failed", "user_id", u.ID, "err", err)
		}
	}
	s.revokeSockets(u, epoch, "disabled")
	return nil
}

func (s *IdentityServiceImpl) ListUsers(ctx context.Context, limit, offset int) ([]dto.UserResponse, error) {
	limit = clampLimit(limit, 50, 200)
	if offset < 0 {
		offset = 0
	}
	users, err := s.Store.Users().List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, dto.NewUserResponse(&users[i]))
	}
	return out, nil
}

func (s *IdentityServiceImpl) Me(ctx context.Context, userID domain.UserID) (*dto.UserResponse, error) {
	u, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := dto.NewUserResponse(u)
	return &out, nil
}

func (s *IdentityServiceImpl) revokeSockets(u *domain.User, epoch int64, reason string) {
	publishRevoked(s.Events, u, epoch, reason)
}

func publishRevoked(pub service.Publisher, u *domain.User, epoch int64, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(events.UserRoom(u.ID.String()), events.NameSessionRevoked, events.SessionRevoked{
		UserID: u.ID.String(),
		Epoch:  epoch,
		Reason: reason,
		At:     time.Now().UTC(),
	})
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func clampLimit(n, def, hi int) int {
	if n <= 0 {
		return def
	}
	return min(n, hi)
}
