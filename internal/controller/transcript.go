package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrMessageNotFound is returned when updating a message the transcript does not hold.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageFrozen is returned when updating a user message or an ended assistant message.
	ErrMessageFrozen = errors.New("message is frozen")
)

// Store persists transcript messages.
type Store interface {
	AddMessage(ctx context.Context, conversationID string, message models.Message) (string, error)
	UpdateMessage(ctx context.Context, conversationID string, message models.Message) error
}

// Transcript is the append-only, ordered sequence of visible messages. When it has a Store, messages are
// persisted when added and whenever they leave the streaming state; persistence failures are logged and
// never affect the visible transcript.
type Transcript struct {
	mu       sync.Mutex
	messages []models.Message
	index    map[string]int

	store          Store
	conversationID string

	view   View
	logger *zap.Logger
}

// NewTranscript creates an empty transcript. store may be nil.
func NewTranscript(view View, store Store, conversationID string, logger *zap.Logger) *Transcript {
	return &Transcript{
		index:          make(map[string]int),
		store:          store,
		conversationID: conversationID,
		view:           view,
		logger:         logger.With(zap.String("module", "transcript")),
	}
}

// Append adds msg at the end of the transcript and returns it with its ID and timestamp filled in.
func (t *Transcript) Append(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if t.store != nil {
		id, err := t.store.AddMessage(context.Background(), t.conversationID, msg)
		if err != nil {
			t.logger.Error("Failed to add message",
				zap.String("message", fmt.Sprintf("%+v", msg)),
				zap.Error(err))
		} else {
			msg.ID = id
		}
	}

	t.mu.Lock()
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	t.view.MessageAppended(msg)
	return msg
}

// Update applies fn to the message with the given id and returns the updated message. Frozen messages
// cannot be updated.
func (t *Transcript) Update(id string, fn func(msg *models.Message)) (models.Message, error) {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if t.messages[i].Frozen() {
		t.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: %s", ErrMessageFrozen, id)
	}
	fn(&t.messages[i])
	msg := t.messages[i]
	t.mu.Unlock()

	if t.store != nil && msg.State != models.StreamingStateStreaming {
		if err := t.store.UpdateMessage(context.Background(), t.conversationID, msg); err != nil {
			t.logger.Error("Failed to update message",
				zap.String("id", msg.ID),
				zap.Error(err))
		}
	}

	t.view.MessageUpdated(msg)
	return msg, nil
}

// Message returns the message with the given id.
func (t *Transcript) Message(id string) (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[id]
	if !ok {
		return models.Message{}, false
	}
	return t.messages[i], true
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs := make([]models.Message, len(t.messages))
	copy(msgs, t.messages)
	return msgs
}
