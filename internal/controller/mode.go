package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"go.uber.org/zap"
)

// SystemSwitcher asks the server to change the active retrieval backend.
type SystemSwitcher interface {
	SwitchSystem(ctx context.Context, mode models.Mode) error
}

// ModeState is the client's belief about the active retrieval backend and the UI affordances bound to
// it. The server is the authority: a local switch is an optimistic prediction that a later query
// response may override.
type ModeState struct {
	mu          sync.Mutex
	mode        models.Mode
	descriptors models.ModeDescriptors
	vectorStore string

	switcher      SystemSwitcher
	results       *ResultsPanel
	notifications *NotificationCenter
	view          View
	logger        *zap.Logger
}

// Reconcile is the transition applied when the server declares a mode. It returns the mode to hold and
// whether it differs from current. An empty declared mode leaves current untouched.
func Reconcile(current, declared models.Mode) (models.Mode, bool) {
	if declared == "" || declared == current {
		return current, false
	}
	return declared, true
}

// NewModeState creates a ModeState holding initial. It does not push anything to view; call SetMode to
// render the initial descriptors.
func NewModeState(
	initial models.Mode,
	switcher SystemSwitcher,
	results *ResultsPanel,
	notifications *NotificationCenter,
	view View,
	logger *zap.Logger,
) *ModeState {
	if !initial.Valid() {
		initial = models.ModePDF
	}
	return &ModeState{
		mode:          initial,
		descriptors:   initial.Descriptors(),
		switcher:      switcher,
		results:       results,
		notifications: notifications,
		view:          view,
		logger:        logger.With(zap.String("module", "mode")),
	}
}

// Mode returns the mode currently held.
func (s *ModeState) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Descriptors returns the UI affordances of the mode currently held.
func (s *ModeState) Descriptors() models.ModeDescriptors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptors
}

// VectorStore returns the vector store type selected for pdf mode.
func (s *ModeState) VectorStore() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vectorStore
}

// SetMode stores mode and re-renders every mode dependent descriptor.
func (s *ModeState) SetMode(mode models.Mode) {
	s.mu.Lock()
	s.mode = mode
	s.descriptors = mode.Descriptors()
	d := s.descriptors
	s.mu.Unlock()

	s.view.ModeChanged(d)
}

// Reconcile adopts a mode declared by the server. It is a no-op, without any view update, when declared
// is empty or already held; it returns whether the held mode changed.
func (s *ModeState) Reconcile(declared models.Mode) bool {
	s.mu.Lock()
	next, changed := Reconcile(s.mode, declared)
	s.mu.Unlock()

	if !changed {
		return false
	}
	s.logger.Info("Server declared a different mode", zap.String("mode", string(next)))
	s.SetMode(next)
	return true
}

// SetVectorStore records the vector store type selected for pdf mode.
func (s *ModeState) SetVectorStore(storeType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorStore = storeType
}

// ReconcileVectorStore adopts a vector store type reported by the server and returns whether the
// selection changed.
func (s *ModeState) ReconcileVectorStore(storeType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if storeType == "" || storeType == s.vectorStore {
		return false
	}
	s.logger.Debug("Using vector store", zap.String("vectorStore", storeType))
	s.vectorStore = storeType
	return true
}

// RequestSwitch switches to mode locally, clears the evidence panel, then asks the server to follow.
//
// The local switch is never rolled back: when the server rejects it or cannot be reached, the UI keeps
// showing mode and an error notification is shown. The next query response carries the server's mode and
// reconciles the two.
func (s *ModeState) RequestSwitch(ctx context.Context, mode models.Mode) error {
	s.SetMode(mode)
	s.results.Clear()

	if err := s.switcher.SwitchSystem(ctx, mode); err != nil {
		s.logger.Error("Failed to switch system", zap.String("mode", string(mode)), zap.Error(err))
		if msg, ok := models.ServerErrorMessage(err); ok {
			s.notifications.Error("System Switch Error", msg)
		} else {
			s.notifications.Error("System Switch Error", "An error occurred while switching systems.")
		}
		return fmt.Errorf("failed to switch system: %w", err)
	}

	s.notifications.Success("Success", fmt.Sprintf("Switched to %s RAG system.", strings.ToUpper(string(mode))))
	return nil
}
