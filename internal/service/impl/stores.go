package impl

import (
	"context"
	"errors"
	"time"

	"messenger/internal/domain"
	"messenger/internal/store"

	"github.com/google/uuid"
)

type dataStore interface {
	Users() userStore
	ActivationTokens() activationStore
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
}

type storeTx interface {
	Users() userStore
	ActivationTokens() activationStore
}

type userStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	FindConflicting(ctx context.Context, email, userName, mobile string) (*domain.User, error)
	LinkExternalIdentity(ctx context.Context, id uuid.UUID, externalID string) error
	BumpEpoch(ctx context.Context, id uuid.UUID) (int64, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (int64, error)
	ClearPassword(ctx context.Context, id uuid.UUID) error
	UpdateProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error
	EachActiveLinked(ctx context.Context, batchSize int, fn func([]domain.User) error) error
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

type activationStore interface {
	Create(ctx context.Context, t *domain.ActivationToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ActivationToken, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type chatStore interface {
	FindOrCreateConversation(ctx context.Context, a, b domain.UserID) (*domain.Conversation, bool, error)
	GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error)
	IsParticipant(ctx context.Context, convID domain.ConversationID, userID domain.UserID) (bool, error)
	CreateMessage(ctx context.Context, m *domain.Message) error
	ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error)
	LastMessage(ctx context.Context, convID domain.ConversationID) (*domain.Message, error)
	History(ctx context.Context, convID domain.ConversationID, limit int) ([]domain.Message, error)
}

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) Users() userStore { return g.store.Users() }

func (g gormStoreAdapter) ActivationTokens() activationStore { return g.store.ActivationTokens() }

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormTxAdapter{tx: tx})
	})
}

type gormTxAdapter struct {
	tx *store.Store
}

func (g gormTxAdapter) Users() userStore { return g.tx.Users() }

func (g gormTxAdapter) ActivationTokens() activationStore { return g.tx.ActivationTokens() }
