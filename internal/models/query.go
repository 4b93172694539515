package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyQuestion is returned when a question is empty after trimming.
var ErrEmptyQuestion = errors.New("question is required")

// QueryRequest is the question and model pair of one query lifecycle. The same pair opens the stream.
type QueryRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"`
}

// NewQueryRequest trims question and rejects it when nothing is left.
func NewQueryRequest(question, model string) (QueryRequest, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return QueryRequest{}, ErrEmptyQuestion
	}
	return QueryRequest{
		Question: q,
		Model:    model,
	}, nil
}

// QueryResponse is the successful body of the evidence fetch.
type QueryResponse struct {
	Documents       []json.RawMessage `json:"documents"`
	ActiveSystem    string            `json:"active_system,omitempty"`
	VectorStoreType string            `json:"vector_store_type,omitempty"`
	Streaming       bool              `json:"streaming,omitempty"`
}

// DeclaredMode returns the mode the server declared for this response, or an empty Mode if it declared
// none.
func (r QueryResponse) DeclaredMode() (Mode, error) {
	if r.ActiveSystem == "" {
		return "", nil
	}
	m, err := ParseMode(r.ActiveSystem)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedEvidence, err)
	}
	return m, nil
}

// Evidence parses the documents with the declared mode, falling back to current when the response
// declares none.
func (r QueryResponse) Evidence(current Mode) (EvidenceSet, error) {
	mode, err := r.DeclaredMode()
	if err != nil {
		return EvidenceSet{}, err
	}
	if mode == "" {
		mode = current
	}
	return ParseEvidence(mode, r.Documents)
}

// Notification is a transient message surfaced to the user.
type Notification struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	IsError bool      `json:"isError"`
	Time    time.Time `json:"time"`
}

// ServerError is an application error: a well-formed server response that carries an error field.
type ServerError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// ServerErrorMessage reports whether err carries an application error, and returns the server's message.
func ServerErrorMessage(err error) (string, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Message, true
	}
	return "", false
}
