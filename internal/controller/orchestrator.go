package controller

import (
	"context"
	"fmt"
	"html"
	"iter"
	"sync"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryBackend fetches evidence and opens answer streams.
type QueryBackend interface {
	Query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
	// Stream yields the raw payloads of the answer stream, DoneSentinel included. Stopping the iteration
	// must close the channel.
	Stream(ctx context.Context, req models.QueryRequest) iter.Seq2[string, error]
}

// Renderer turns answer text into rich content.
type Renderer interface {
	Render(text string) (string, error)
}

// State is a state of the query lifecycle.
type State string

// Query lifecycle states.
const (
	StateIdle             State = "idle"
	StateAwaitingEvidence State = "awaiting_evidence"
	StateEvidenceFailed   State = "evidence_failed"
	StateEvidenceReady    State = "evidence_ready"
	StateStreamingAnswer  State = "streaming_answer"
	StateStreamComplete   State = "stream_complete"
	StateStreamFailed     State = "stream_failed"
)

const (
	queryFailedText  = "Error: Failed to process query."
	streamFailedText = "Error: Failed to generate response."
)

// Orchestrator owns the lifecycle of queries:
//
//	Idle -> AwaitingEvidence -> (EvidenceFailed | EvidenceReady -> StreamingAnswer -> (StreamComplete | StreamFailed)) -> Idle
//
// Each submission runs its own lifecycle. Nothing serializes them: a query submitted while another is
// still streaming gets its own placeholder and its own StreamSession, and there is no ordering guarantee
// between the two, including which one's evidence or mode reconciliation is applied last.
type Orchestrator struct {
	backend  QueryBackend
	renderer Renderer

	modes         *ModeState
	results       *ResultsPanel
	transcript    *Transcript
	notifications *NotificationCenter

	logger *zap.Logger
}

// Query is the handle of one query lifecycle.
type Query struct {
	ID                 string
	Request            models.QueryRequest
	UserMessageID      string
	AssistantMessageID string

	mu          sync.Mutex
	state       State
	outcome     State
	transitions []State
	session     *StreamSession
	err         error

	done chan struct{}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	backend QueryBackend,
	renderer Renderer,
	modes *ModeState,
	results *ResultsPanel,
	transcript *Transcript,
	notifications *NotificationCenter,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		backend:       backend,
		renderer:      renderer,
		modes:         modes,
		results:       results,
		transcript:    transcript,
		notifications: notifications,
		logger:        logger.With(zap.String("module", "orchestrator")),
	}
}

// Submit starts a query. The user message and the assistant placeholder are appended before Submit
// returns and before any network call is made; the rest of the lifecycle runs in the background.
func (o *Orchestrator) Submit(ctx context.Context, question, model string) (*Query, error) {
	req, err := models.NewQueryRequest(question, model)
	if err != nil {
		return nil, err
	}

	q := &Query{
		ID:      uuid.New().String(),
		Request: req,
		state:   StateIdle,
		done:    make(chan struct{}),
	}

	um := o.transcript.Append(models.Message{
		Role:  models.RoleUser,
		Text:  req.Question,
		State: models.StreamingStateEnded,
	})
	am := o.transcript.Append(models.Message{
		Role:    models.RoleAssistant,
		Text:    models.PlaceholderText,
		Content: html.EscapeString(models.PlaceholderText),
		State:   models.StreamingStateLoading,
	})
	q.UserMessageID = um.ID
	q.AssistantMessageID = am.ID

	q.transition(StateAwaitingEvidence)
	go o.run(ctx, q)

	return q, nil
}

// Ask submits a query and waits for it to end.
func (o *Orchestrator) Ask(ctx context.Context, question, model string) (*Query, error) {
	q, err := o.Submit(ctx, question, model)
	if err != nil {
		return nil, err
	}
	if _, err := q.Wait(ctx); err != nil && ctx.Err() != nil {
		return q, err
	}
	return q, nil
}

func (o *Orchestrator) run(ctx context.Context, q *Query) {
	defer q.finish()

	logger := o.logger.With(zap.String("query", q.ID))

	res, err := o.backend.Query(ctx, q.Request)
	if err != nil {
		o.evidenceFailed(logger, q, err)
		return
	}
	set, err := res.Evidence(o.modes.Mode())
	if err != nil {
		o.evidenceFailed(logger, q, err)
		return
	}
	// DeclaredMode cannot fail once Evidence succeeded.
	declared, _ := res.DeclaredMode()

	q.transition(StateEvidenceReady)
	logger.Debug("Evidence ready", zap.String("mode", string(set.Mode)), zap.Int("records", len(set.Records)))

	o.results.Show(set)
	o.modes.Reconcile(declared)
	if o.modes.Mode() == models.ModePDF && res.VectorStoreType != "" {
		o.modes.ReconcileVectorStore(res.VectorStoreType)
	}

	o.stream(ctx, logger, q)
}

func (o *Orchestrator) evidenceFailed(logger *zap.Logger, q *Query, err error) {
	logger.Error("Failed to fetch evidence", zap.Error(err))

	text := queryFailedText
	notice := "An error occurred while processing your query."
	if msg, ok := models.ServerErrorMessage(err); ok {
		text = "Error: " + msg
		notice = msg
	}

	o.replaceText(logger, q.AssistantMessageID, text)
	o.notifications.Error("Query Error", notice)
	q.fail(StateEvidenceFailed, err)
}

func (o *Orchestrator) stream(ctx context.Context, logger *zap.Logger, q *Query) {
	q.transition(StateStreamingAnswer)

	session := NewStreamSession(q.Request)
	q.setSession(session)
	logger = logger.With(zap.String("session", session.ID))

	if _, err := o.transcript.Update(q.AssistantMessageID, func(m *models.Message) {
		m.State = models.StreamingStateStreaming
	}); err != nil {
		logger.Error("Failed to bind stream to message", zap.Error(err))
	}

	err := session.Run(o.backend.Stream(ctx, q.Request), func(text string) {
		content := o.render(logger, text)
		if _, err := o.transcript.Update(q.AssistantMessageID, func(m *models.Message) {
			m.Text = text
			m.Content = content
		}); err != nil {
			logger.Error("Failed to render fragment", zap.Error(err))
		}
	})
	if err == nil {
		text := session.Text()
		content := o.render(logger, text)
		if _, err := o.transcript.Update(q.AssistantMessageID, func(m *models.Message) {
			m.Text = text
			m.Content = content
			m.State = models.StreamingStateEnded
		}); err != nil {
			logger.Error("Failed to freeze message", zap.Error(err))
		}
		logger.Debug("Stream complete", zap.Int("length", len(text)))
		q.complete(StateStreamComplete)
		return
	}

	logger.Error("Stream failed", zap.Error(err))
	if session.Text() == "" {
		o.replaceText(logger, q.AssistantMessageID, streamFailedText)
		o.notifications.Error("Stream Error", "Failed to generate response.")
	} else {
		// Partial answers are kept as they were last rendered.
		if _, err := o.transcript.Update(q.AssistantMessageID, func(m *models.Message) {
			m.State = models.StreamingStateEnded
		}); err != nil {
			logger.Error("Failed to freeze message", zap.Error(err))
		}
	}
	q.fail(StateStreamFailed, err)
}

// replaceText replaces an assistant message with plain text and freezes it.
func (o *Orchestrator) replaceText(logger *zap.Logger, id, text string) {
	if _, err := o.transcript.Update(id, func(m *models.Message) {
		m.Text = text
		m.Content = html.EscapeString(text)
		m.State = models.StreamingStateEnded
	}); err != nil {
		logger.Error("Failed to replace message text", zap.Error(err))
	}
}

func (o *Orchestrator) render(logger *zap.Logger, text string) string {
	content, err := o.renderer.Render(text)
	if err != nil {
		logger.Warn("Failed to render content, falling back to text", zap.Error(err))
		return html.EscapeString(text)
	}
	return content
}

// State returns the current state of the query.
func (q *Query) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Transitions returns every state the query went through, in order.
func (q *Query) Transitions() []State {
	q.mu.Lock()
	defer q.mu.Unlock()

	ts := make([]State, len(q.transitions))
	copy(ts, q.transitions)
	return ts
}

// Session returns the stream session of the query, or nil if no stream was opened.
func (q *Query) Session() *StreamSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.session
}

// Done is closed once the query is back to Idle.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the query is back to Idle and returns its terminal state, along with the error that
// caused a failure. If ctx ends first, Wait returns the current state and the context error.
func (q *Query) Wait(ctx context.Context) (State, error) {
	select {
	case <-q.done:
	case <-ctx.Done():
		return q.State(), fmt.Errorf("waiting for query: %w", ctx.Err())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outcome, q.err
}

func (q *Query) transition(s State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = s
	q.transitions = append(q.transitions, s)
}

func (q *Query) setSession(s *StreamSession) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.session = s
}

func (q *Query) complete(s State) {
	q.transition(s)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.outcome = s
}

func (q *Query) fail(s State, err error) {
	q.transition(s)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.outcome = s
	q.err = err
}

func (q *Query) finish() {
	q.transition(StateIdle)
	close(q.done)
}
