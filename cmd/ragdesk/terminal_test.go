package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/MegaGrindStone/ragdesk/internal/controller"
	"github.com/MegaGrindStone/ragdesk/internal/models"
)

func newPlainTerminalView(t *testing.T) (*terminalView, *bytes.Buffer) {
	t.Helper()

	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	return newTerminalView(&buf), &buf
}

func TestTerminalViewStreamsAnswer(t *testing.T) {
	v, buf := newPlainTerminalView(t)

	v.MessageAppended(models.Message{ID: "u", Role: models.RoleUser, Text: "Hi?", State: models.StreamingStateEnded})
	v.MessageAppended(models.Message{ID: "a", Role: models.RoleAssistant, Text: models.PlaceholderText, State: models.StreamingStateLoading})
	v.MessageUpdated(models.Message{ID: "a", Role: models.RoleAssistant, Text: models.PlaceholderText, State: models.StreamingStateStreaming})
	v.MessageUpdated(models.Message{ID: "a", Role: models.RoleAssistant, Text: "Hel", State: models.StreamingStateStreaming})
	v.MessageUpdated(models.Message{ID: "a", Role: models.RoleAssistant, Text: "Hello", State: models.StreamingStateStreaming})
	v.MessageUpdated(models.Message{ID: "a", Role: models.RoleAssistant, Text: "Hello", State: models.StreamingStateEnded})

	assert.Equal(t, "> Hi?\nThinking...\nHello\n", buf.String())
}

func TestTerminalViewFailures(t *testing.T) {
	v, buf := newPlainTerminalView(t)

	v.MessageAppended(models.Message{ID: "a", Role: models.RoleAssistant, Text: models.PlaceholderText, State: models.StreamingStateLoading})
	v.MessageUpdated(models.Message{ID: "a", Role: models.RoleAssistant, Text: "Error: boom", State: models.StreamingStateEnded})

	v.MessageAppended(models.Message{ID: "b", Role: models.RoleAssistant, Text: models.PlaceholderText, State: models.StreamingStateLoading})
	v.MessageUpdated(models.Message{ID: "b", Role: models.RoleAssistant, Text: models.PlaceholderText, State: models.StreamingStateStreaming})
	v.MessageUpdated(models.Message{ID: "b", Role: models.RoleAssistant, Text: "Error: Failed to generate response.", State: models.StreamingStateEnded})

	v.Notified(models.Notification{Title: "Stream Error", Message: "Failed to generate response.", IsError: true})

	assert.Equal(t, "Thinking...\nError: boom\nThinking...\nError: Failed to generate response.\n"+
		"Stream Error: Failed to generate response.\n", buf.String())
}

func TestTerminalViewResults(t *testing.T) {
	v, buf := newPlainTerminalView(t)

	v.ResultsChanged(controller.ResultList{})
	assert.Empty(t, buf.String())

	v.ResultsChanged(controller.RenderResults(models.EvidenceSet{Mode: models.ModeWeb}))
	assert.Equal(t, "Search Results\nNo relevant documents found.\n", buf.String())

	buf.Reset()
	v.ResultsChanged(controller.RenderResults(models.EvidenceSet{
		Mode: models.ModePDF,
		Records: []models.EvidenceRecord{
			models.PDFEvidence{Index: 1, Source: "a.pdf", Score: 0.91, Content: "X is...\nmore"},
		},
	}))
	assert.Equal(t, "Retrieved Documents\n  Document 1 (Source: a.pdf)\n  Score: 0.9100\n  X is...\n  more\n\n", buf.String())
}

func TestTerminalViewMode(t *testing.T) {
	v, buf := newPlainTerminalView(t)

	v.ModeChanged(models.ModeWeb.Descriptors())
	assert.Equal(t, "[Web RAG] Ask anything to search the web...\n", buf.String())
}
