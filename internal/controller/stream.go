package controller

import (
	"errors"
	"iter"
	"strings"
	"sync"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/google/uuid"
)

// DoneSentinel is the fragment that ends an answer stream normally.
const DoneSentinel = "[DONE]"

// ErrStreamEnded is the transport error reported when a stream stops before sending DoneSentinel.
var ErrStreamEnded = errors.New("stream ended before completion")

// StreamSession consumes one answer stream. Fragments are appended verbatim in the order they arrive;
// DoneSentinel is the only successful way out and any transport error ends the session for good.
type StreamSession struct {
	ID      string
	Request models.QueryRequest

	mu   sync.Mutex
	text strings.Builder
	open bool
	done bool
	err  error
}

// NewStreamSession creates an open session for req.
func NewStreamSession(req models.QueryRequest) *StreamSession {
	return &StreamSession{
		ID:      uuid.New().String(),
		Request: req,
		open:    true,
	}
}

// Apply feeds one fragment to the session and reports whether the session is done. Fragments received
// after the session closed are ignored.
func (s *StreamSession) Apply(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return s.done
	}
	if fragment == DoneSentinel {
		s.done = true
		s.open = false
		return true
	}
	s.text.WriteString(fragment)
	return false
}

// Fail closes the session with err. It has no effect on a closed session.
func (s *StreamSession) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return
	}
	s.open = false
	s.err = err
}

// Run drains fragments until DoneSentinel or an error, calling onText with the accumulated text after
// every appended fragment. Returning stops the iteration, which closes the underlying channel. A nil
// error means the session completed.
func (s *StreamSession) Run(fragments iter.Seq2[string, error], onText func(text string)) error {
	for fragment, err := range fragments {
		if err != nil {
			s.Fail(err)
			return err
		}
		if s.Apply(fragment) {
			return nil
		}
		onText(s.Text())
	}

	s.Fail(ErrStreamEnded)
	return ErrStreamEnded
}

// Text returns the text accumulated so far.
func (s *StreamSession) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// IsOpen reports whether the session still accepts fragments.
func (s *StreamSession) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// IsDone reports whether the session received DoneSentinel.
func (s *StreamSession) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error that closed the session, if any.
func (s *StreamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
