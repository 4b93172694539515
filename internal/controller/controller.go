package controller

import (
	"github.com/MegaGrindStone/ragdesk/internal/models"
	"go.uber.org/zap"
)

// Server is everything the controller needs from the question-answering server.
type Server interface {
	QueryBackend
	SystemSwitcher
	Collaborators
	ModelLister
}

// Options configures a Controller.
type Options struct {
	Server   Server
	Renderer Renderer
	View     View

	// Models lists the selectable models. Defaults to Server.
	Models ModelLister
	// Mode is the mode assumed until the server says otherwise. Defaults to pdf.
	Mode models.Mode
	// VectorStore is the vector store type assumed for pdf mode.
	VectorStore string

	// Store persists the transcript under ConversationID when set.
	Store          Store
	ConversationID string

	Logger *zap.Logger
}

// Controller wires the components of a session together.
type Controller struct {
	Notifications *NotificationCenter
	Results       *ResultsPanel
	Modes         *ModeState
	Transcript    *Transcript
	Orchestrator  *Orchestrator
	Controls      *Controls
}

// New creates a Controller and renders the initial mode on the view.
func New(opts Options) *Controller {
	view := opts.View
	if view == nil {
		view = NopView{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lister := opts.Models
	if lister == nil {
		lister = opts.Server
	}

	notifications := NewNotificationCenter(view, logger)
	results := NewResultsPanel(view)
	modes := NewModeState(opts.Mode, opts.Server, results, notifications, view, logger)
	modes.SetVectorStore(opts.VectorStore)
	transcript := NewTranscript(view, opts.Store, opts.ConversationID, logger)

	c := &Controller{
		Notifications: notifications,
		Results:       results,
		Modes:         modes,
		Transcript:    transcript,
		Orchestrator:  NewOrchestrator(opts.Server, opts.Renderer, modes, results, transcript, notifications, logger),
		Controls:      NewControls(opts.Server, lister, modes, notifications, logger),
	}
	modes.SetMode(modes.Mode())
	return c
}
