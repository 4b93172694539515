package controller

import (
	"fmt"
	"strings"
	"sync"

	"github.com/MegaGrindStone/ragdesk/internal/models"
)

// NoResultsText is shown in place of an empty evidence list.
const NoResultsText = "No relevant documents found."

// ResultCard is one rendered evidence record.
type ResultCard struct {
	Header string `json:"header"`
	// Score is only set for pdf evidence.
	Score string `json:"score,omitempty"`
	// URL is only set for web evidence that carries a link.
	URL  string `json:"url,omitempty"`
	Body string `json:"body"`
}

// ResultList is the rendered evidence panel. The zero value is a cleared panel; an empty evidence set
// renders as Empty with a Placeholder, never as a list without cards.
type ResultList struct {
	Heading     string       `json:"heading,omitempty"`
	Empty       bool         `json:"empty"`
	Placeholder string       `json:"placeholder,omitempty"`
	Cards       []ResultCard `json:"cards,omitempty"`
}

// RenderResults turns an evidence set into its rendered list. It does not modify set.
func RenderResults(set models.EvidenceSet) ResultList {
	list := ResultList{
		Heading: set.Mode.Descriptors().ResultsHeading,
	}
	if len(set.Records) == 0 {
		list.Empty = true
		list.Placeholder = NoResultsText
		return list
	}

	list.Cards = make([]ResultCard, 0, len(set.Records))
	for _, rec := range set.Records {
		switch r := rec.(type) {
		case models.PDFEvidence:
			list.Cards = append(list.Cards, ResultCard{
				Header: fmt.Sprintf("Document %d (Source: %s)", r.Index, r.Source),
				Score:  fmt.Sprintf("Score: %.4f", r.Score),
				Body:   r.Content,
			})
		case models.WebEvidence:
			header := r.Title
			if header == "" {
				header = fmt.Sprintf("Result %d", r.Index)
			}
			list.Cards = append(list.Cards, ResultCard{
				Header: header,
				URL:    r.URL,
				Body:   r.Content,
			})
		}
	}
	return list
}

// Text renders the list as plain text.
func (l ResultList) Text() string {
	var sb strings.Builder
	if l.Heading != "" {
		sb.WriteString(l.Heading)
		sb.WriteString("\n")
	}
	if l.Empty {
		sb.WriteString(l.Placeholder)
		sb.WriteString("\n")
		return sb.String()
	}
	for _, c := range l.Cards {
		sb.WriteString("\n")
		sb.WriteString(c.Header)
		sb.WriteString("\n")
		if c.Score != "" {
			sb.WriteString(c.Score)
			sb.WriteString("\n")
		}
		if c.URL != "" {
			sb.WriteString(c.URL)
			sb.WriteString("\n")
		}
		sb.WriteString(c.Body)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ResultsPanel holds the evidence list currently shown.
type ResultsPanel struct {
	mu      sync.Mutex
	current ResultList

	view View
}

// NewResultsPanel creates an empty panel that shows its lists on view.
func NewResultsPanel(view View) *ResultsPanel {
	return &ResultsPanel{view: view}
}

// Show renders set and displays it.
func (p *ResultsPanel) Show(set models.EvidenceSet) ResultList {
	list := RenderResults(set)
	p.set(list)
	return list
}

// Clear removes whatever the panel shows.
func (p *ResultsPanel) Clear() {
	p.set(ResultList{})
}

// Current returns the list currently shown.
func (p *ResultsPanel) Current() ResultList {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *ResultsPanel) set(list ResultList) {
	p.mu.Lock()
	p.current = list
	p.mu.Unlock()

	p.view.ResultsChanged(list)
}
