package models

import "time"

// Conversation groups the messages of one transcript so it can be persisted and listed later.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Message represents an individual entry of the visible transcript. A user message is immutable once
// created. An assistant message starts as a placeholder, has its Text and Content mutated while its stream
// is open, and is frozen once State reaches StreamingStateEnded.
type Message struct {
	ID   string
	Role Role

	// Text is the raw text of the message. For assistant messages this is the accumulated stream text.
	Text string
	// Content is Text rendered as rich content. It is only filled for assistant messages.
	Content string

	State     StreamingState
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

// StreamingState tracks where an assistant message is in its lifecycle.
type StreamingState string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a generated answer, or the placeholder waiting for it.
	RoleAssistant Role = "assistant"

	// StreamingStateLoading marks the placeholder shown while evidence is being fetched.
	StreamingStateLoading StreamingState = "loading"
	// StreamingStateStreaming marks a message whose stream is still open.
	StreamingStateStreaming StreamingState = "streaming"
	// StreamingStateEnded marks a frozen message.
	StreamingStateEnded StreamingState = "ended"
)

// PlaceholderText is the text of an assistant message before any evidence or answer arrived.
const PlaceholderText = "Thinking..."

// Frozen reports whether the message can no longer change.
func (m Message) Frozen() bool {
	return m.Role == RoleUser || m.State == StreamingStateEnded
}
