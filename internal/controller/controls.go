package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"go.uber.org/zap"
)

// Collaborators are the one-shot server operations that do not take part in the query lifecycle.
type Collaborators interface {
	Upload(ctx context.Context, filename string, content io.Reader) (string, error)
	Reindex(ctx context.Context) error
	SwitchVectorStore(ctx context.Context, storeType string) (string, error)
	VectorStores(ctx context.Context) ([]string, error)
}

// ModelLister lists the models a query can be answered with.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// Controls runs the collaborator operations. Every one of them follows the same pattern: on failure it
// notifies and leaves the state as it was; on success it notifies and updates what it owns.
type Controls struct {
	backend Collaborators
	lister  ModelLister

	mu     sync.Mutex
	models []string

	modes         *ModeState
	notifications *NotificationCenter
	logger        *zap.Logger
}

// NewControls creates Controls.
func NewControls(
	backend Collaborators,
	lister ModelLister,
	modes *ModeState,
	notifications *NotificationCenter,
	logger *zap.Logger,
) *Controls {
	return &Controls{
		backend:       backend,
		lister:        lister,
		modes:         modes,
		notifications: notifications,
		logger:        logger.With(zap.String("module", "controls")),
	}
}

// Models returns the model list of the last successful refresh.
func (c *Controls) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.models)
}

// Upload sends the PDF file at path to be indexed.
func (c *Controls) Upload(ctx context.Context, path string) (string, error) {
	if path == "" || !strings.EqualFold(filepath.Ext(path), ".pdf") {
		c.notifications.Error("Error", "Please select a PDF file to upload.")
		return "", fmt.Errorf("not a pdf file: %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		c.notifications.Error("Upload Error", "An error occurred during upload.")
		return "", fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	name, err := c.backend.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		c.fail("Upload Error", "An error occurred during upload.", err)
		return "", err
	}

	c.notifications.Success("Success", fmt.Sprintf("File %s uploaded and indexed successfully.", name))
	return name, nil
}

// Reindex asks the server to rebuild its document index.
func (c *Controls) Reindex(ctx context.Context) error {
	if err := c.backend.Reindex(ctx); err != nil {
		c.fail("Indexing Error", "An error occurred during indexing.", err)
		return err
	}

	c.notifications.Success("Success", "Documents reindexed successfully.")
	return nil
}

// RefreshModels replaces the model list with the one currently available.
func (c *Controls) RefreshModels(ctx context.Context) ([]string, error) {
	ms, err := c.lister.Models(ctx)
	if err != nil {
		c.fail("Error", "Failed to fetch available models.", err)
		return nil, err
	}

	c.mu.Lock()
	c.models = slices.Clone(ms)
	c.mu.Unlock()

	c.notifications.Success("Success", fmt.Sprintf("Found %d available models.", len(ms)))
	return ms, nil
}

// SwitchVectorStore switches the vector store used in pdf mode.
func (c *Controls) SwitchVectorStore(ctx context.Context, storeType string) error {
	st, err := c.backend.SwitchVectorStore(ctx, storeType)
	if err != nil {
		c.fail("Vector Store Error", "An error occurred while switching vector stores.", err)
		return err
	}

	c.modes.SetVectorStore(st)
	c.notifications.Success("Success", fmt.Sprintf("Switched to %s vector store.", strings.ToUpper(st)))
	return nil
}

// VectorStores lists the vector store types the server supports. Only failures are notified.
func (c *Controls) VectorStores(ctx context.Context) ([]string, error) {
	vs, err := c.backend.VectorStores(ctx)
	if err != nil {
		c.fail("Vector Store Error", "Failed to fetch vector stores.", err)
		return nil, err
	}
	return vs, nil
}

// fail notifies the server's message for application errors and fallback for everything else.
func (c *Controls) fail(title, fallback string, err error) {
	c.logger.Error(title, zap.Error(err))
	if msg, ok := models.ServerErrorMessage(err); ok {
		c.notifications.Error(title, msg)
		return
	}
	c.notifications.Error(title, fallback)
}
