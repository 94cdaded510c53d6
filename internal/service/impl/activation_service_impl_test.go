package impl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"messenger/internal/domain"
)

func disabledUser(t *testing.T, f *fixture, handle string) *domain.User {
	t.Helper()
	u := f.register(t, handle)
	if err := f.identity.DisableAccount(context.Background(), u.ID); err != nil {
		t.Fatalf("disable %s: %v", handle, err)
	}
	return f.reload(t, u)
}

func TestActivationRoundTripAndReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := disabledUser(t, f, "alma")
	epochBefore := u.SessionEpoch

	msg, err := f.activation.RequestEnableAccount(ctx, " ALMA@example.com")
	if err != nil || msg != msgActivationRequested {
		t.Fatalf("request: %q %v", msg, err)
	}
	mail := f.mail.last(t)
	if mail.kind != "activation" || !strings.HasPrefix(mail.link, "https://chat.test/activate-account?token=") {
		t.Fatalf("unexpected mail %+v", mail)
	}
	token := tokenFromLink(t, mail.link)

	res, err := f.activation.EnableAccountWithToken(ctx, token)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !res.Success || res.Message != msgActivated || res.UserID != u.ID.String() {
		t.Fatalf("unexpected response %+v", res)
	}
	got := f.reload(t, u)
	if !got.IsActive || got.SessionEpoch != epochBefore+1 {
		t.Fatalf("expected active with epoch %d, got active=%v epoch=%d", epochBefore+1, got.IsActive, got.SessionEpoch)
	}
	ident, claim, _ := f.idp.Snapshot(u.ExternalID())
	if ident.Disabled || claim != got.SessionEpoch {
		t.Fatalf("external identity not mirrored: disabled=%v claim=%d", ident.Disabled, claim)
	}

	if _, err := f.activation.EnableAccountWithToken(ctx, token); !errors.Is(err, domain.ErrInvalidActivation) {
		t.Fatalf("replay must fail, got %v", err)
	}
}

func TestActivationRequestIsGenericAndThrottled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "bart")
	disabledUser(t, f, "cleo")

	for _, email := range []string{"bart@example.com", "nobody@example.com", "cleo@example.com", "cleo@example.com"} {
		msg, err := f.activation.RequestEnableAccount(ctx, email)
		if err != nil || msg != msgActivationRequested {
			t.Fatalf("%s: %q %v", email, msg, err)
		}
	}
	if n := len(f.mail.sent); n != 1 {
		t.Fatalf("expected exactly one activation mail (inactive user, first request), got %d", n)
	}
}

func TestActivationRejectsGarbageAndMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.activation.EnableAccountWithToken(ctx, "  "); !errors.Is(err, domain.ErrMissingActivation) {
		t.Fatalf("expected missing token, got %v", err)
	}
	for _, junk := range []string{"abc", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30.sig"} {
		if _, err := f.activation.EnableAccountWithToken(ctx, junk); !errors.Is(err, domain.ErrInvalidActivation) {
			t.Fatalf("%q: expected invalid activation, got %v", junk, err)
		}
	}
}

func TestActivationChecksStoredExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := disabledUser(t, f, "dora")
	if _, err := f.activation.RequestEnableAccount(ctx, "dora@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := tokenFromLink(t, f.mail.last(t).link)

	// The signed exp still holds by the signer's clock, but the row has expired.
	f.activation.Now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := f.activation.EnableAccountWithToken(ctx, token); !errors.Is(err, domain.ErrInvalidActivation) {
		t.Fatalf("expected invalid activation, got %v", err)
	}
	if f.reload(t, u).IsActive {
		t.Fatalf("user must stay inactive")
	}
}

func TestActivationRedisablesIdentityWhenTransactionFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := disabledUser(t, f, "eli")
	if _, err := f.activation.RequestEnableAccount(ctx, "eli@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := tokenFromLink(t, f.mail.last(t).link)

	f.faults["SetActive"] = errors.New("db down")
	if _, err := f.activation.EnableAccountWithToken(ctx, token); err == nil {
		t.Fatalf("expected failure")
	}
	if ident, _, _ := f.idp.Snapshot(u.ExternalID()); !ident.Disabled {
		t.Fatalf("identity should be disabled again")
	}
	if f.reload(t, u).IsActive {
		t.Fatalf("user must stay inactive")
	}

	// The token was not consumed by the rolled-back transaction.
	delete(f.faults, "SetActive")
	if _, err := f.activation.EnableAccountWithToken(ctx, token); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

func TestActivationLosingConcurrentRedemptionKeepsIdentityEnabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := disabledUser(t, f, "finn")
	if _, err := f.activation.RequestEnableAccount(ctx, "finn@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := tokenFromLink(t, f.mail.last(t).link)
	disables := f.idp.Calls("DisableIdentity")

	f.raced = true
	if _, err := f.activation.EnableAccountWithToken(ctx, token); !errors.Is(err, domain.ErrInvalidActivation) {
		t.Fatalf("losing redemption must be rejected, got %v", err)
	}
	if f.idp.Calls("DisableIdentity") != disables {
		t.Fatalf("the winning redemption's identity must not be disabled")
	}
	if ident, _, _ := f.idp.Snapshot(u.ExternalID()); ident.Disabled {
		t.Fatalf("identity should stay enabled")
	}
	if f.reload(t, u).IsActive {
		t.Fatalf("the losing call must not activate the user")
	}
}
