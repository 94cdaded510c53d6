package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"messenger/internal/domain"
	"messenger/internal/store"
	"messenger/pkg/db"

	"github.com/google/uuid"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.OpenMemory(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return store.New(gdb)
}

func seedUser(t *testing.T, st *store.Store, handle string) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:        handle + "@example.com",
		UserName:     handle,
		MobileNumber: "+1" + handle,
		FirstName:    "First",
		LastName:     "Last",
		IsActive:     true,
	}
	if err := st.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", handle, err)
	}
	return u
}

func TestUserUniqueIndexesTranslate(t *testing.T) {
	st := setupStore(t)
	seedUser(t, st, "alice")

	dup := &domain.User{
		Email:        "other@example.com",
		UserName:     "alice",
		MobileNumber: "+1999",
		FirstName:    "A",
		LastName:     "B",
	}
	err := st.Users().Create(context.Background(), dup)
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestLinkExternalIdentityOnlyOnce(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	u := seedUser(t, st, "bob")

	if err := st.Users().LinkExternalIdentity(ctx, u.ID, "ext-1"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := st.Users().LinkExternalIdentity(ctx, u.ID, "ext-2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on relink, got %v", err)
	}
	got, err := st.Users().GetByExternalID(ctx, "ext-1")
	if err != nil {
		t.Fatalf("lookup by external id: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("unexpected user %s", got.ID)
	}
	if _, err := st.Users().GetByExternalID(ctx, "ext-2"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected not found for ext-2, got %v", err)
	}
}

func TestEpochOnlyIncreases(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	u := seedUser(t, st, "carol")

	e1, err := st.Users().BumpEpoch(ctx, u.ID)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	e2, err := st.Users().SetActive(ctx, u.ID, false)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if e1 != 1 || e2 != 2 {
		t.Fatalf("expected epochs 1 then 2, got %d and %d", e1, e2)
	}
	got, _ := st.Users().GetByID(ctx, u.ID)
	if got.IsActive || got.SessionEpoch != 2 {
		t.Fatalf("unexpected state active=%v epoch=%d", got.IsActive, got.SessionEpoch)
	}

	if _, err := st.Users().BumpEpoch(ctx, uuid.New()); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestEachActiveLinkedSkipsInactiveAndUnlinked(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	linked := seedUser(t, st, "dave")
	_ = st.Users().LinkExternalIdentity(ctx, linked.ID, "ext-dave")
	seedUser(t, st, "erin")
	off := seedUser(t, st, "frank")
	_ = st.Users().LinkExternalIdentity(ctx, off.ID, "ext-frank")
	_, _ = st.Users().SetActive(ctx, off.ID, false)

	var seen []string
	err := st.Users().EachActiveLinked(ctx, 1, func(batch []domain.User) error {
		for _, u := range batch {
			seen = append(seen, u.ExternalID())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 1 || seen[0] != "ext-dave" {
		t.Fatalf("unexpected walk result %v", seen)
	}
}

func TestActivationTokenConsumedOnce(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	u := seedUser(t, st, "gina")

	tok := &domain.ActivationToken{UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}
	if err := st.ActivationTokens().Create(ctx, tok); err != nil {
		t.Fatalf("create token: %v", err)
	}
	now := time.Now().UTC()
	if err := st.ActivationTokens().Consume(ctx, tok.ID, now); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := st.ActivationTokens().Consume(ctx, tok.ID, now); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on replay, got %v", err)
	}
	got, err := st.ActivationTokens().GetByID(ctx, tok.ID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got.UsedAt == nil || got.Usable(now) {
		t.Fatalf("token should be used")
	}
}

func TestDeleteExpiredKeepsLiveTokens(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	u := seedUser(t, st, "hank")
	now := time.Now().UTC()

	expired := &domain.ActivationToken{UserID: u.ID, ExpiresAt: now.Add(-time.Minute)}
	usedExpired := &domain.ActivationToken{UserID: u.ID, ExpiresAt: now.Add(-time.Minute)}
	live := &domain.ActivationToken{UserID: u.ID, ExpiresAt: now.Add(time.Hour)}
	for _, tok := range []*domain.ActivationToken{expired, usedExpired, live} {
		if err := st.ActivationTokens().Create(ctx, tok); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}
	if err := st.ActivationTokens().Consume(ctx, usedExpired.ID, now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("consume: %v", err)
	}

	n, err := st.ActivationTokens().DeleteExpired(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("expected two pruned tokens, got %d %v", n, err)
	}
	for _, tok := range []*domain.ActivationToken{expired, usedExpired} {
		if _, err := st.ActivationTokens().GetByID(ctx, tok.ID); !errors.Is(err, store.ErrRecordNotFound) {
			t.Fatalf("token %s should be gone, got %v", tok.ID, err)
		}
	}
	if _, err := st.ActivationTokens().GetByID(ctx, live.ID); err != nil {
		t.Fatalf("live token should remain: %v", err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	u := seedUser(t, st, "hank")
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Users().SetActive(ctx, u.ID, false); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := st.Users().GetByID(ctx, u.ID)
	if !got.IsActive || got.SessionEpoch != 0 {
		t.Fatalf("transaction was not rolled back: active=%v epoch=%d", got.IsActive, got.SessionEpoch)
	}
}

func TestFindOrCreateConversationDedupes(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	a := seedUser(t, st, "ivy")
	b := seedUser(t, st, "jack")

	first, created, err := st.Chats().FindOrCreateConversation(ctx, a.ID, b.ID)
	if err != nil || !created {
		t.Fatalf("create conversation: created=%v err=%v", created, err)
	}
	second, created, err := st.Chats().FindOrCreateConversation(ctx, b.ID, a.ID)
	if err != nil || created {
		t.Fatalf("second lookup: created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same conversation")
	}
	if len(second.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(second.Participants))
	}

	ok, err := st.Chats().IsParticipant(ctx, first.ID, a.ID)
	if err != nil || !ok {
		t.Fatalf("expected participant: %v %v", ok, err)
	}

	got, err := st.Chats().GetConversation(ctx, first.ID)
	if err != nil || len(got.Participants) != 2 {
		t.Fatalf("get conversation: %+v %v", got, err)
	}
	if _, err := st.Chats().GetConversation(ctx, uuid.New()); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestHistoryIsChronological(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	a := seedUser(t, st, "kate")
	b := seedUser(t, st, "liam")
	conv, _, err := st.Chats().FindOrCreateConversation(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}

	base := time.Now().UTC()
	for i, text := range []string{"one", "two", "three"} {
		m := &domain.Message{ConversationID: conv.ID, SenderID: a.ID, Content: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := st.Chats().CreateMessage(ctx, m); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}

	msgs, err := st.Chats().History(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Fatalf("unexpected history %+v", msgs)
	}
	last, err := st.Chats().LastMessage(ctx, conv.ID)
	if err != nil || last == nil || last.Content != "three" {
		t.Fatalf("unexpected last message %+v %v", last, err)
	}

	convs, err := st.Chats().ListForUser(ctx, b.ID)
	if err != nil || len(convs) != 1 {
		t.Fatalf("list for user: %d %v", len(convs), err)
	}
}
