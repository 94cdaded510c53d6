package idp

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type FirebaseConfig struct {
	ProjectID          string
	ServiceAccountPath string
	APIKey             string
	RESTBaseURL        string
	TokenBaseURL       string
}

// FirebaseBridge implements Bridge with the Admin SDK for identity management and
// the REST client for password sign-in and refresh.
type FirebaseBridge struct {
	client *auth.Client
	rest   *RESTClient
}

func NewFirebaseBridge(ctx context.Context, cfg FirebaseConfig) (*FirebaseBridge, error) {
	var opts []option.ClientOption
	if cfg.ServiceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseBridge{
		client: client,
		rest:   NewRESTClient(cfg.APIKey, cfg.RESTBaseURL, cfg.TokenBaseURL),
	}, nil
}

func (b *FirebaseBridge) CreateIdentity(ctx context.Context, email, secret string) (string, error) {
	rec, err := b.client.CreateUser(ctx, (&auth.UserToCreate{}).Email(email).Password(secret))
	if err != nil {
		return "", classify("create_identity", err)
	}
	return rec.UID, nil
}

func (b *FirebaseBridge) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	rec, err := b.client.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, classify("get_identity_by_email", err)
	}
	return toIdentity(rec), nil
}

func (b *FirebaseBridge) GetIdentityByID(ctx context.Context, id string) (*Identity, error) {
	rec, err := b.client.GetUser(ctx, id)
	if err != nil {
		return nil, classify("get_identity", err)
	}
	return toIdentity(rec), nil
}

func (b *FirebaseBridge) DeleteIdentity(ctx context.Context, id string) error {
	return classify("delete_identity", b.client.DeleteUser(ctx, id))
}

func (b *FirebaseBridge) SetSessionClaim(ctx context.Context, id string, epoch int64) error {
	return classify("set_session_claim", b.client.SetCustomUserClaims(ctx, id, map[string]interface{}{
		SessionEpochClaim: epoch,
	}))
}

func (b *FirebaseBridge) DisableIdentity(ctx context.Context, id string) error {
	_, err := b.client.UpdateUser(ctx, id, (&auth.UserToUpdate{}).Disabled(true))
	return classify("disable_identity", err)
}

func (b *FirebaseBridge) EnableIdentity(ctx context.Context, id string) error {
	_, err := b.client.UpdateUser(ctx, id, (&auth.UserToUpdate{}).Disabled(false))
	return classify("enable_identity", err)
}

func (b *FirebaseBridge) UpdateSecret(ctx context.Context, id, secret string) error {
	_, err := b.client.UpdateUser(ctx, id, (&auth.UserToUpdate{}).Password(secret))
	return classify("update_secret", err)
}

// VerifyBearerCredential always checks revocation; any failure is reported as an invalid token.
func (b *FirebaseBridge) VerifyBearerCredential(ctx context.Context, token string) (*VerifiedCredential, error) {
	tok, err := b.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		return nil, NewError("verify_bearer", CodeInvalidToken, err)
	}
	vc := &VerifiedCredential{IdentityID: tok.UID}
	switch v := tok.Claims[SessionEpochClaim].(type) {
	case float64:
		vc.ClaimEpoch, vc.HasClaim = int64(v), true
	case int64:
		vc.ClaimEpoch, vc.HasClaim = v, true
	}
	return vc, nil
}

func (b *FirebaseBridge) SignInWithSecret(ctx context.Context, email, secret string) (*SignInResult, error) {
	return b.rest.SignInWithPassword(ctx, email, secret)
}

func (b *FirebaseBridge) RefreshBearerCredential(ctx context.Context, refreshToken string) (string, error) {
	return b.rest.Refresh(ctx, refreshToken)
}

func (b *FirebaseBridge) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	link, err := b.client.PasswordResetLink(ctx, email)
	if err != nil {
		return "", classify("password_reset_link", err)
	}
	return link, nil
}

func (b *FirebaseBridge) ListIdentities(ctx context.Context, pageSize int, cursor string) (*Page, error) {
	pager := iterator.NewPager(b.client.Users(ctx, ""), pageSize, cursor)
	var recs []*auth.ExportedUserRecord
	next, err := pager.NextPage(&recs)
	if err != nil {
		return nil, classify("list_identities", err)
	}
	page := &Page{NextCursor: next, Identities: make([]Identity, 0, len(recs))}
	for _, r := range recs {
		page.Identities = append(page.Identities, *toIdentity(r.UserRecord))
	}
	return page, nil
}

func toIdentity(rec *auth.UserRecord) *Identity {
	return &Identity{ID: rec.UID, Email: strings.ToLower(rec.Email), Disabled: rec.Disabled}
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case auth.IsUserNotFound(err):
		return NewError(op, CodeNotFound, err)
	case auth.IsEmailAlreadyExists(err), auth.IsUIDAlreadyExists(err):
		return NewError(op, CodeAlreadyExists, err)
	default:
		return NewError(op, CodeUnavailable, err)
	}
}
