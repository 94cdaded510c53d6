package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID           ConversationID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	PairKey      string         `gorm:"type:text;not null;uniqueIndex:ux_conversations_pair_key" db:"pair_key" json:"-"`
	CreatedAt    time.Time      `gorm:"not null" db:"created_at" json:"createdAt"`
	Participants []Participant  `gorm:"foreignKey:ConversationID" json:"participants"`
}

func (Conversation) TableName() string { return "conversations" }

type Participant struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" db:"id" json:"-"`
	ConversationID ConversationID `gorm:"type:uuid;not null;uniqueIndex:ux_participants_conv_user,priority:1" db:"conversation_id" json:"conversationId"`
	UserID         UserID         `gorm:"type:uuid;not null;uniqueIndex:ux_participants_conv_user,priority:2;index" db:"user_id" json:"userId"`
	User           *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Participant) TableName() string { return "participants" }

type Message struct {
	ID             MessageID      `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	ConversationID ConversationID `gorm:"type:uuid;not null;index:idx_messages_conv_created,priority:1" db:"conversation_id" json:"conversationId"`
	SenderID       UserID         `gorm:"type:uuid;not null" db:"sender_id" json:"senderId"`
	Content        string         `gorm:"type:text;not null" db:"content" json:"content"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_messages_conv_created,priority:2" db:"created_at" json:"createdAt"`
	Sender         *User          `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (Message) TableName() string { return "messages" }

// PairKey is the order-independent key identifying the one-to-one conversation between a and b.
func PairKey(a, b UserID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
