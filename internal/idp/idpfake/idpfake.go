// Package idpfake is an in-memory identity provider used by tests and local development.
package idpfake

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"messenger/internal/idp"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type record struct {
	id       string
	email    string
	secret   string
	disabled bool
	epoch    *int64
}

// Bridge is a thread-safe idp.Bridge. Bearer tokens are HS256 JWTs carrying the
// session claim at mint time, so a stale token keeps its old epoch.
type Bridge struct {
	mu       sync.Mutex
	byID     map[string]*record
	byEmail  map[string]string
	refresh  map[string]string
	key      []byte
	failures map[string][]error
	sticky   map[string]error
	calls    map[string]int
}

var _ idp.Bridge = (*Bridge)(nil)

func New() *Bridge {
	return &Bridge{
		byID:     map[string]*record{},
		byEmail:  map[string]string{},
		refresh:  map[string]string{},
		key:      []byte(uuid.NewString()),
		failures: map[string][]error{},
		sticky:   map[string]error{},
		calls:    map[string]int{},
	}
}

// FailNext makes the next call of op return err.
func (b *Bridge) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], err)
}

// FailAlways makes every call of op return err until cleared with a nil err.
func (b *Bridge) FailAlways(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.sticky, op)
		return
	}
	b.sticky[op] = err
}

func (b *Bridge) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Seed inserts an identity directly, bypassing failure injection.
func (b *Bridge) Seed(email, secret string, disabled bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := "uid-" + uuid.NewString()[:8]
	b.byID[id] = &record{id: id, email: strings.ToLower(email), secret: secret, disabled: disabled}
	b.byEmail[strings.ToLower(email)] = id
	return id
}

// Snapshot returns a copy of the identity with the claim epoch (-1 when unset).
func (b *Bridge) Snapshot(id string) (idp.Identity, int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[id]
	if !ok {
		return idp.Identity{}, 0, false
	}
	epoch := int64(-1)
	if r.epoch != nil {
		epoch = *r.epoch
	}
	return idp.Identity{ID: r.id, Email: r.email, Disabled: r.disabled}, epoch, true
}

func (b *Bridge) Secret(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.byID[id]; ok {
		return r.secret
	}
	return ""
}

func (b *Bridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

// enter records the call and pops an injected failure. Caller holds no lock.
func (b *Bridge) enter(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if err, ok := b.sticky[op]; ok {
		return err
	}
	if q := b.failures[op]; len(q) > 0 {
		b.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func notFound(op string) error { return idp.NewError(op, idp.CodeNotFound, nil) }

func (b *Bridge) CreateIdentity(ctx context.Context, email, secret string) (string, error) {
	if err := b.enter("CreateIdentity"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email = strings.ToLower(email)
	if _, ok := b.byEmail[email]; ok {
		return "", idp.NewError("create_identity", idp.CodeAlreadyExists, nil)
	}
	id := "uid-" + uuid.NewString()[:8]
	b.byID[id] = &record{id: id, email: email, secret: secret}
	b.byEmail[email] = id
	return id, nil
}

func (b *Bridge) GetIdentityByEmail(ctx context.Context, email string) (*idp.Identity, error) {
	if err := b.enter("GetIdentityByEmail"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, notFound("get_identity_by_email")
	}
	r := b.byID[id]
	return &idp.Identity{ID: r.id, Email: r.email, Disabled: r.disabled}, nil
}

func (b *Bridge) GetIdentityByID(ctx context.Context, id string) (*idp.Identity, error) {
	if err := b.enter("GetIdentityByID"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[id]
	if !ok {
		return nil, notFound("get_identity")
	}
	return &idp.Identity{ID: r.id, Email: r.email, Disabled: r.disabled}, nil
}

func (b *Bridge) DeleteIdentity(ctx context.Context, id string) error {
	if err := b.enter("DeleteIdentity"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[id]
	if !ok {
		return notFound("delete_identity")
	}
	delete(b.byEmail, r.email)
	delete(b.byID, id)
	return nil
}

func (b *Bridge) SetSessionClaim(ctx context.Context, id string, epoch int64) error {
	if err := b.enter("SetSessionClaim"); err != nil {
		return err
	}
	return b.update(id, "set_session_claim", func(r *record) { r.epoch = &epoch })
}

func (b *Bridge) DisableIdentity(ctx context.Context, id string) error {
	if err := b.enter("DisableIdentity"); err != nil {
		return err
	}
	return b.update(id, "disable_identity", func(r *record) { r.disabled = true })
}

func (b *Bridge) EnableIdentity(ctx context.Context, id string) error {
	if err := b.enter("EnableIdentity"); err != nil {
		return err
	}
	return b.update(id, "enable_identity", func(r *record) { r.disabled = false })
}

func (b *Bridge) UpdateSecret(ctx context.Context, id, secret string) error {
	if err := b.enter("UpdateSecret"); err != nil {
		return err
	}
	return b.update(id, "update_secret", func(r *record) { r.secret = secret })
}

func (b *Bridge) update(id, op string, fn func(*record)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[id]
	if !ok {
		return notFound(op)
	}
	fn(r)
	return nil
}

// VerifyBearerCredential rejects tokens of deleted or disabled identities, which is
// what the revocation check does upstream.
func (b *Bridge) VerifyBearerCredential(ctx context.Context, token string) (*idp.VerifiedCredential, error) {
	if err := b.enter("VerifyBearerCredential"); err != nil {
		return nil, err
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) { return b.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, idp.NewError("verify_bearer", idp.CodeInvalidToken, err)
	}
	sub, _ := claims.GetSubject()

	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[sub]
	if !ok || r.disabled {
		return nil, idp.NewError("verify_bearer", idp.CodeInvalidToken, errors.New("revoked"))
	}
	vc := &idp.VerifiedCredential{IdentityID: sub}
	if v, ok := claims[idp.SessionEpochClaim].(float64); ok {
		vc.ClaimEpoch, vc.HasClaim = int64(v), true
	}
	return vc, nil
}

func (b *Bridge) SignInWithSecret(ctx context.Context, email, secret string) (*idp.SignInResult, error) {
	if err := b.enter("SignInWithSecret"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byEmail[strings.ToLower(email)]
	if !ok || b.byID[id].secret != secret {
		return nil, idp.NewError("sign_in", idp.CodeInvalidCredentials, nil)
	}
	r := b.byID[id]
	if r.disabled {
		return nil, idp.NewError("sign_in", idp.CodeUserDisabled, nil)
	}
	bearer, err := b.mint(r)
	if err != nil {
		return nil, idp.NewError("sign_in", idp.CodeUnavailable, err)
	}
	rt := "rt-" + uuid.NewString()
	b.refresh[rt] = id
	return &idp.SignInResult{IdentityID: id, BearerToken: bearer, RefreshToken: rt}, nil
}

func (b *Bridge) RefreshBearerCredential(ctx context.Context, refreshToken string) (string, error) {
	if err := b.enter("RefreshBearerCredential"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.refresh[refreshToken]
	r := b.byID[id]
	if !ok || r == nil {
		return "", idp.NewError("refresh", idp.CodeInvalidToken, nil)
	}
	if r.disabled {
		return "", idp.NewError("refresh", idp.CodeUserDisabled, nil)
	}
	bearer, err := b.mint(r)
	if err != nil {
		return "", idp.NewError("refresh", idp.CodeUnavailable, err)
	}
	return bearer, nil
}

// MintBearer issues a token for id with its current claims, as a fresh sign-in would.
func (b *Bridge) MintBearer(id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.byID[id]
	if !ok {
		return "", notFound("mint")
	}
	return b.mint(r)
}

func (b *Bridge) mint(r *record) (string, error) {
	claims := jwt.MapClaims{
		"sub": r.id,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"jti": uuid.NewString(),
	}
	if r.epoch != nil {
		claims[idp.SessionEpochClaim] = *r.epoch
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.key)
}

func (b *Bridge) GeneratePasswordResetLink(ctx context.Context, email string) (string, error) {
	if err := b.enter("GeneratePasswordResetLink"); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byEmail[strings.ToLower(email)]; !ok {
		return "", notFound("password_reset_link")
	}
	return "https://idp.local/reset?email=" + url.QueryEscape(email), nil
}

// ListIdentities pages in id order; the cursor is the offset of the next page.
func (b *Bridge) ListIdentities(ctx context.Context, pageSize int, cursor string) (*idp.Page, error) {
	if err := b.enter("ListIdentities"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.byID))
	for id := range b.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, idp.NewError("list_identities", idp.CodeUnavailable, fmt.Errorf("bad cursor %q", cursor))
		}
		start = n
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	page := &idp.Page{}
	end := start + pageSize
	if end < len(ids) {
		page.NextCursor = strconv.Itoa(end)
	} else {
		end = len(ids)
	}
	for _, id := range ids[min(start, end):end] {
		r := b.byID[id]
		page.Identities = append(page.Identities, idp.Identity{ID: r.id, Email: r.email, Disabled: r.disabled})
	}
	return page, nil
}
