// Package chat posts in-app messages and maintains each chat's last-message
// mirror. The mirror's SMS echo is what lets the relay router reconnect a
// carrier leg to the chat it came from.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutorbookapp/relay/internal/models"
	"gorm.io/gorm"
)

// Echo renders the SMS mirror of an in-app message. The exact text is also
// what correlation searches for, so every producer must use this form.
func Echo(firstName, text string) string {
	return firstName + " says: " + text
}

// Poster writes in-app messages to the chat store.
type Poster struct {
	db *gorm.DB
}

// PosterOpts holds parameters for creating a Poster.
type PosterOpts struct {
	DB *gorm.DB
}

// NewPoster creates a Poster.
func NewPoster(opts PosterOpts) (*Poster, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("chat: poster: db is required")
	}
	return &Poster{db: opts.DB}, nil
}

// PostOpts describes one in-app message.
type PostOpts struct {
	From *models.User // defaults to the Operator identity
	// To lists the recipients; the message lands in the chat whose
	// participants cover every non-operator user involved.
	To   []*models.User
	Text string
	// SMS is the echo stored in the last-message mirror. Defaults to
	// Echo(sender first name, Text).
	SMS string
	// At overrides the message timestamp; defaults to now.
	At time.Time
}

// Post appends a message to the chat between From and To, creating the chat
// when none exists, and updates the chat's last-message mirror.
func (p *Poster) Post(ctx context.Context, opts PostOpts) (*models.ChatMessage, error) {
	if len(opts.To) == 0 {
		return nil, fmt.Errorf("chat: post: at least one recipient is required")
	}
	if opts.Text == "" {
		return nil, fmt.Errorf("chat: post: text is required")
	}
	from := opts.From
	if from == nil {
		from = models.Operator()
	}
	sms := opts.SMS
	if sms == "" {
		sms = Echo(from.FirstName(), opts.Text)
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}

	chat, err := p.findOrCreate(ctx, from, opts.To, at)
	if err != nil {
		return nil, err
	}

	msg := models.ChatMessage{
		ChatID:    chat.ID,
		SentBy:    from.UID,
		Text:      opts.Text,
		SMS:       sms,
		CreatedAt: at,
	}
	if err := p.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("chat: post message: %w", err)
	}

	updates := map[string]interface{}{
		"last_message_text":    opts.Text,
		"last_message_sms":     sms,
		"last_message_sent_by": from.UID,
		"last_message_at":      at,
	}
	if err := p.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ?", chat.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("chat: update last message: %w", err)
	}
	return &msg, nil
}

// findOrCreate returns the most recent chat whose participants cover all
// non-operator users involved, creating a fresh chat when none exists.
func (p *Poster) findOrCreate(ctx context.Context, from *models.User, to []*models.User, at time.Time) (*models.Chat, error) {
	uids := participantUIDs(append([]*models.User{from}, to...)...)
	if len(uids) == 0 {
		return nil, fmt.Errorf("chat: post: no human participants")
	}

	query := p.db.WithContext(ctx).Model(&models.Chat{})
	for _, uid := range uids {
		query = query.Where(
			"EXISTS (SELECT 1 FROM chat_participants WHERE chat_participants.chat_id = chats.id AND chat_participants.user_uid = ?)",
			uid,
		)
	}

	var chat models.Chat
	err := query.Order("last_message_at DESC").First(&chat).Error
	if err == nil {
		return &chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("chat: find chat: %w", err)
	}

	encoded, err := json.Marshal(uids)
	if err != nil {
		return nil, fmt.Errorf("chat: encode chatter uids: %w", err)
	}
	chat = models.Chat{
		ChatterUIDs:   string(encoded),
		CreatedBy:     from.UID,
		LastMessageAt: at,
	}
	if err := p.db.WithContext(ctx).Create(&chat).Error; err != nil {
		return nil, fmt.Errorf("chat: create chat: %w", err)
	}
	for _, uid := range uids {
		part := models.ChatParticipant{ChatID: chat.ID, UserUID: uid}
		if err := p.db.WithContext(ctx).Create(&part).Error; err != nil {
			return nil, fmt.Errorf("chat: add participant %s: %w", uid, err)
		}
	}
	return &chat, nil
}

// participantUIDs returns the deduplicated non-operator uids among the
// given users.
func participantUIDs(users ...*models.User) []string {
	seen := make(map[string]bool)
	var uids []string
	for _, u := range users {
		if u == nil || u.UID == "" || u.UID == models.OperatorUID || seen[u.UID] {
			continue
		}
		seen[u.UID] = true
		uids = append(uids, u.UID)
	}
	return uids
}
