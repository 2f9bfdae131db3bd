package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutorbookapp/relay/internal/carrier"
	"github.com/tutorbookapp/relay/internal/directory"
	"github.com/tutorbookapp/relay/internal/models"
	"gorm.io/gorm"
)

// correlationTolerance is how far a chat's last-message timestamp may drift
// from the carrier leg it mirrors. Policy constant, not configurable.
const correlationTolerance = 150 * time.Second // ±2.5 minutes

// Correspondent is the party a responder is believed to be replying to.
// Either a human user was identified, or nobody was and the message
// escalates to a supervisor.
type Correspondent struct {
	human *models.User
}

// HumanCorrespondent wraps an identified user.
func HumanCorrespondent(u *models.User) Correspondent {
	return Correspondent{human: u}
}

// UnknownCorrespondent is the operator-sentinel result: no human could be
// correlated.
func UnknownCorrespondent() Correspondent {
	return Correspondent{}
}

// Human returns the identified user and true, or nil and false when the
// correspondent is unknown.
func (c Correspondent) Human() (*models.User, bool) {
	return c.human, c.human != nil
}

// Unknown reports whether no human correspondent was identified.
func (c Correspondent) Unknown() bool { return c.human == nil }

// Resolver cross-references a delivery-log leg with the chat store to find
// the human the leg was exchanged with.
type Resolver struct {
	db  *gorm.DB
	dir *directory.Directory
}

// ResolverOpts holds parameters for creating a Resolver.
type ResolverOpts struct {
	DB        *gorm.DB
	Directory *directory.Directory
}

// NewResolver creates a Resolver.
func NewResolver(opts ResolverOpts) (*Resolver, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: resolver: db is required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("relay: resolver: directory is required")
	}
	return &Resolver{db: opts.DB, dir: opts.Directory}, nil
}

// Resolve finds the correspondent for a terminal leg. A zero match is not
// an error: it resolves to the unknown correspondent. Store failures are
// returned as errors so the caller can distinguish "no correlation found"
// from "could not query for correlation".
func (r *Resolver) Resolve(ctx context.Context, leg carrier.Leg, responder *models.User) (Correspondent, error) {
	// A leg sent from the responder's own phone was mirrored into the
	// chat store in its relayed form; rewrite the search key to match.
	key := leg.Body
	if leg.From == responder.Phone {
		key = Envelope(responder.FirstName(), leg.Body)
	}

	after := leg.CreatedAt.Add(-correlationTolerance)
	before := leg.CreatedAt.Add(correlationTolerance)

	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_participants ON chat_participants.chat_id = chats.id").
		Where("chat_participants.user_uid = ?", responder.UID).
		Where("chats.last_message_sms = ?", key).
		Where("chats.last_message_at >= ? AND chats.last_message_at <= ?", after, before).
		Order("chats.last_message_at DESC, chats.id DESC").
		Limit(1).
		Find(&chats).Error
	if err != nil {
		return Correspondent{}, fmt.Errorf("relay: correlate %q: %w", key, err)
	}
	if len(chats) == 0 {
		return UnknownCorrespondent(), nil
	}
	return r.correspondentOf(ctx, &chats[0], responder)
}

// correspondentOf resolves the chat's last-message sender to a full user
// record. When the sender is the responder themself, the other participant
// of the chat is the correspondent instead.
func (r *Resolver) correspondentOf(ctx context.Context, chat *models.Chat, responder *models.User) (Correspondent, error) {
	uid := chat.LastMessageSentBy
	if uid == responder.UID {
		other, err := otherParticipant(chat, responder.UID)
		if err != nil {
			return Correspondent{}, err
		}
		uid = other
	}
	if uid == "" || uid == models.OperatorUID {
		return UnknownCorrespondent(), nil
	}

	user, err := r.dir.UserByUID(ctx, uid)
	if errors.Is(err, directory.ErrNotFound) {
		// The chat outlived the account. Treat as uncorrelatable.
		return UnknownCorrespondent(), nil
	}
	if err != nil {
		return Correspondent{}, err
	}
	return HumanCorrespondent(user), nil
}

// otherParticipant returns the participant uid that is not self.
func otherParticipant(chat *models.Chat, self string) (string, error) {
	var uids []string
	if err := json.Unmarshal([]byte(chat.ChatterUIDs), &uids); err != nil {
		return "", fmt.Errorf("relay: chat %d chatter uids: %w", chat.ID, err)
	}
	for _, uid := range uids {
		if uid != self {
			return uid, nil
		}
	}
	return "", nil
}
