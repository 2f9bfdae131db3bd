package models

import "time"

// Chat is the durable conversation record between two users. The relay
// router reads the last-message mirror columns to reconnect an SMS leg to
// the chat it originated from; the chat feature owns all writes.
type Chat struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	ChatterUIDs       string `gorm:"type:json"` // JSON array of participant uids
	LastMessageText   string `gorm:"type:text"`
	LastMessageSMS    string `gorm:"type:text;index:idx_chat_sms,length:255"` // exact SMS echo of the last message
	LastMessageSentBy string `gorm:"size:64"`
	LastMessageAt     time.Time `gorm:"index"`
	CreatedBy         string `gorm:"size:64"`
	CreatedAt         time.Time

	Participants []ChatParticipant `gorm:"foreignKey:ChatID"`
	Messages     []ChatMessage     `gorm:"foreignKey:ChatID"`
}

// ChatParticipant joins users to chats. Kept alongside the denormalized
// ChatterUIDs column so participant filters stay plain SQL.
type ChatParticipant struct {
	ChatID  uint   `gorm:"primaryKey"`
	UserUID string `gorm:"primaryKey;size:64;index"`
}

// ChatMessage is one in-app message within a chat.
type ChatMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChatID    uint   `gorm:"not null;index"`
	SentBy    string `gorm:"size:64;not null"`
	Text      string `gorm:"type:text;not null"`
	SMS       string `gorm:"type:text"` // the SMS rendering that was (or would be) sent
	CreatedAt time.Time
}
