// Package controller holds the client side of a question-answering session: the belief about which
// retrieval backend is active, the transcript, the evidence panel, and the lifecycle of every query from
// evidence fetch to the end of its answer stream. Everything the user sees is pushed to a View.
package controller

import "github.com/MegaGrindStone/ragdesk/internal/models"

// View receives every observable change made by the controller. Implementations must be safe for
// concurrent use: concurrent queries update the view from their own goroutines.
type View interface {
	MessageAppended(msg models.Message)
	MessageUpdated(msg models.Message)
	ModeChanged(d models.ModeDescriptors)
	ResultsChanged(list ResultList)
	Notified(n models.Notification)
}

// Views fans every change out to all of its members, in order.
type Views []View

// NopView discards every change.
type NopView struct{}

// MessageAppended implements View.
func (vs Views) MessageAppended(msg models.Message) {
	for _, v := range vs {
		v.MessageAppended(msg)
	}
}

// MessageUpdated implements View.
func (vs Views) MessageUpdated(msg models.Message) {
	for _, v := range vs {
		v.MessageUpdated(msg)
	}
}

// ModeChanged implements View.
func (vs Views) ModeChanged(d models.ModeDescriptors) {
	for _, v := range vs {
		v.ModeChanged(d)
	}
}

// ResultsChanged implements View.
func (vs Views) ResultsChanged(list ResultList) {
	for _, v := range vs {
		v.ResultsChanged(list)
	}
}

// Notified implements View.
func (vs Views) Notified(n models.Notification) {
	for _, v := range vs {
		v.Notified(n)
	}
}

// MessageAppended implements View.
func (NopView) MessageAppended(models.Message) {}

// MessageUpdated implements View.
func (NopView) MessageUpdated(models.Message) {}

// ModeChanged implements View.
func (NopView) ModeChanged(models.ModeDescriptors) {}

// ResultsChanged implements View.
func (NopView) ResultsChanged(ResultList) {}

// Notified implements View.
func (NopView) Notified(models.Notification) {}
