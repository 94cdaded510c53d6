package impl

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"messenger/internal/cache"
	"messenger/internal/domain"
	"messenger/internal/dto"
	"messenger/internal/idp/idpfake"
	"messenger/internal/jwtsigner"
	"messenger/internal/store"
	"messenger/pkg/db"

	"github.com/google/uuid"
)

type published struct {
	room, event string
	payload     any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(room, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{room: room, event: event, payload: payload})
}

func (p *recordingPublisher) byEvent(name string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct{ kind, to, link string }

type recordingEmail struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingEmail) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{"reset", to, link})
	return nil
}

func (m *recordingEmail) SendActivationLink(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{"activation", to, link})
	return nil
}

func (m *recordingEmail) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected an email to be sent")
	}
	return m.sent[len(m.sent)-1]
}

// faultyStore wraps the real store and fails selected user-store methods.
// When raced is set, every transactional Consume is preceded by a competing one.
type faultyStore struct {
	dataStore
	fail  map[string]error
	raced *bool
}

func (f *faultyStore) Users() userStore { return faultyUsers{userStore: f.dataStore.Users(), fail: f.fail} }

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	return f.dataStore.WithTx(ctx, func(tx storeTx) error {
		return fn(faultyTx{storeTx: tx, fail: f.fail, raced: f.raced})
	})
}

type faultyTx struct {
	storeTx
	fail  map[string]error
	raced *bool
}

func (t faultyTx) Users() userStore { return faultyUsers{userStore: t.storeTx.Users(), fail: t.fail} }

func (t faultyTx) ActivationTokens() activationStore {
	inner := t.storeTx.ActivationTokens()
	if t.raced == nil || !*t.raced {
		return inner
	}
	return racedTokens{activationStore: inner}
}

type racedTokens struct {
	activationStore
}

func (r racedTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := r.activationStore.Consume(ctx, id, at); err != nil {
		return err
	}
	return r.activationStore.Consume(ctx, id, at)
}

type faultyUsers struct {
	userStore
	fail map[string]error
}

func (u faultyUsers) Create(ctx context.Context, usr *domain.User) error {
	if err := u.fail["Create"]; err != nil {
		return err
	}
	return u.userStore.Create(ctx, usr)
}

func (u faultyUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	if err := u.fail["SetActive"]; err != nil {
		return 0, err
	}
	return u.userStore.SetActive(ctx, id, active)
}

func (u faultyUsers) ClearPassword(ctx context.Context, id uuid.UUID) error {
	if err := u.fail["ClearPassword"]; err != nil {
		return err
	}
	return u.userStore.ClearPassword(ctx, id)
}

type fixture struct {
	st     *store.Store
	idp    *idpfake.Bridge
	pub    *recordingPublisher
	mail   *recordingEmail
	faults map[string]error
	// raced makes another redemption consume the activation token just before this one.
	raced bool

	identity   *IdentityServiceImpl
	activation *ActivationServiceImpl
	sync       *SyncServiceImpl
	chat       *ChatServiceImpl
}

const testAdminKey = "admin-secret"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenMemory(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st := store.New(gdb)
	signer, err := jwtsigner.New("activation-secret-for-tests")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	f := &fixture{
		st:     st,
		idp:    idpfake.New(),
		pub:    &recordingPublisher{},
		mail:   &recordingEmail{},
		faults: map[string]error{},
	}
	ds := &faultyStore{dataStore: gormStoreAdapter{store: st}, fail: f.faults, raced: &f.raced}

	f.identity = &IdentityServiceImpl{Store: ds, IdP: f.idp, Email: f.mail, Events: f.pub}
	f.activation = &ActivationServiceImpl{
		Store:     ds,
		IdP:       f.idp,
		Signer:    signer,
		Email:     f.mail,
		Cooldowns: cache.NewMemoryStore(),
		Config:    ActivationConfig{TTL: 30 * time.Minute, Cooldown: time.Minute, PublicBaseURL: "https://chat.test"},
		Now:       time.Now,
	}
	f.sync = &SyncServiceImpl{Store: ds, IdP: f.idp, Events: f.pub, AdminKey: testAdminKey, PageSize: 1000, BatchSize: 2}
	f.chat = NewChatServiceImpl(st, f.pub)
	return f
}

func registerRequest(handle string) dto.RegisterRequest {
	return dto.RegisterRequest{
		Email:           handle + "@example.com",
		FirstName:       "First",
		LastName:        "Last",
		UserName:        handle,
		MobileNumber:    "+1555" + handle,
		Password:        "Abc12345",
		ConfirmPassword: "Abc12345",
	}
}

func (f *fixture) register(t *testing.T, handle string) *domain.User {
	t.Helper()
	res, err := f.identity.Register(context.Background(), registerRequest(handle))
	if err != nil {
		t.Fatalf("register %s: %v", handle, err)
	}
	return f.user(t, res.ID)
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.st.Users().GetByID(context.Background(), uuid.MustParse(id))
	if err != nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u
}

func (f *fixture) reload(t *testing.T, u *domain.User) *domain.User {
	t.Helper()
	return f.user(t, u.ID.String())
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	tok := parsed.Query().Get("token")
	if tok == "" {
		t.Fatalf("no token in %q", link)
	}
	return tok
}
