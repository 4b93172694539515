package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MegaGrindStone/ragdesk/internal/controller"
	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// Main exposes a controller over HTTP. Requests drive the controller; every change the controller makes
// is pushed to the connected clients as a server-sent event, so Main is also the controller's View.
type Main struct {
	sseSrv *sse.Server
	ctrl   *controller.Controller

	logger *zap.Logger
}

type message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	StreamingState string `json:"streamingState"`
}

// SSE event types for real-time updates.
const (
	messagesSSEType      = "messages"
	modeSSEType          = "mode"
	resultsSSEType       = "results"
	notificationsSSEType = "notifications"
)

// NewMain creates a Main and the controller it serves. opts.View, when set, receives every change along
// with the connected clients.
func NewMain(opts controller.Options) *Main {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				// A client following one answer also gets its updates on a dedicated topic.
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		logger: logger.With(zap.String("module", "handlers")),
	}

	if opts.View != nil {
		opts.View = controller.Views{m, opts.View}
	} else {
		opts.View = m
	}
	m.ctrl = controller.New(opts)

	return m
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// Controller returns the controller served by m.
func (m *Main) Controller() *controller.Controller {
	return m.ctrl
}

// HandleSSE subscribes the client to the controller's updates.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// MessageAppended implements controller.View.
func (m *Main) MessageAppended(msg models.Message) {
	m.publish(messagesSSEType, newMessage(msg), sse.DefaultTopic)
}

// MessageUpdated implements controller.View.
func (m *Main) MessageUpdated(msg models.Message) {
	m.publish(messagesSSEType, newMessage(msg), sse.DefaultTopic, messageIDTopic(msg.ID))
}

// ModeChanged implements controller.View.
func (m *Main) ModeChanged(d models.ModeDescriptors) {
	m.publish(modeSSEType, d, sse.DefaultTopic)
}

// ResultsChanged implements controller.View.
func (m *Main) ResultsChanged(list controller.ResultList) {
	m.publish(resultsSSEType, list, sse.DefaultTopic)
}

// Notified implements controller.View.
func (m *Main) Notified(n models.Notification) {
	m.publish(notificationsSSEType, n, sse.DefaultTopic)
}

func (m *Main) publish(eventType string, v any, topics ...string) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("Failed to marshal event",
			zap.String("type", eventType),
			zap.Error(err))
		return
	}

	msg := sse.Message{
		Type: sse.Type(eventType),
	}
	msg.AppendData(string(data))

	if err := m.sseSrv.Publish(&msg, topics...); err != nil {
		m.logger.Error("Failed to publish event",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func newMessage(msg models.Message) message {
	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Text:           msg.Text,
		Content:        msg.Content,
		Timestamp:      msg.Timestamp,
		StreamingState: string(msg.State),
	}
}

// Shutdown gracefully terminates the SSE server. It broadcasts a close message to all connected clients
// and waits up to 5 seconds for connections to terminate. After the timeout, any remaining connections
// are forcefully closed.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// SSE requires data on every event.
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
