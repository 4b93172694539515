package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"go.uber.org/zap"
)

type submitted struct {
	QueryID            string `json:"queryId"`
	UserMessageID      string `json:"userMessageId"`
	AssistantMessageID string `json:"assistantMessageId"`
}

type vectorStores struct {
	Types   []string `json:"types"`
	Current string   `json:"current"`
}

// HandleChats submits a question through HTTP POST requests. It expects a "message" form field and an
// optional "model" field.
//
// The query runs after the response is written: the client follows the placeholder message through the
// "messages" events of the SSE stream, on the topic of the returned assistant message ID.
func (m *Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The lifecycle outlives the request.
	q, err := m.ctrl.Orchestrator.Submit(context.Background(), r.FormValue("message"), r.FormValue("model"))
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuestion) {
			m.logger.Error("Message is required")
			http.Error(w, "Message is required", http.StatusBadRequest)
			return
		}
		m.logger.Error("Failed to submit query", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, http.StatusAccepted, submitted{
		QueryID:            q.ID,
		UserMessageID:      q.UserMessageID,
		AssistantMessageID: q.AssistantMessageID,
	})
}

// HandleSystem switches the retrieval mode. It expects a "system" form field holding "pdf" or "web".
// The mode switches locally even when the server rejects it; the failure is notified and the handler
// answers with a Bad Gateway.
func (m *Main) HandleSystem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mode, err := models.ParseMode(r.FormValue("system"))
	if err != nil {
		m.logger.Error("Invalid system", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := m.ctrl.Modes.RequestSwitch(r.Context(), mode); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	m.writeJSON(w, http.StatusOK, m.ctrl.Modes.Descriptors())
}

// HandleVectorStore lists the vector store types on GET and switches the selected one on POST, from the
// "vector_store_type" form field.
func (m *Main) HandleVectorStore(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		types, err := m.ctrl.Controls.VectorStores(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		m.writeJSON(w, http.StatusOK, vectorStores{
			Types:   types,
			Current: m.ctrl.Modes.VectorStore(),
		})
	case http.MethodPost:
		storeType := r.FormValue("vector_store_type")
		if storeType == "" {
			m.logger.Error("Vector store type is required")
			http.Error(w, "Vector store type is required", http.StatusBadRequest)
			return
		}
		if err := m.ctrl.Controls.SwitchVectorStore(r.Context(), storeType); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		m.writeJSON(w, http.StatusOK, vectorStores{Current: m.ctrl.Modes.VectorStore()})
	default:
		m.logger.Error("Method not allowed", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleIndex asks the server to rebuild its document index.
func (m *Main) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := m.ctrl.Controls.Reindex(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleModels refreshes and returns the selectable models.
func (m *Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		m.logger.Error("Method not allowed", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ms, err := m.ctrl.Controls.RefreshModels(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	m.writeJSON(w, http.StatusOK, ms)
}

func (m *Main) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.logger.Error("Failed to write response", zap.Error(err))
	}
}
