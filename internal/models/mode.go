package models

import (
	"fmt"
	"strings"
)

// Mode identifies which retrieval backend answers queries.
type Mode string

const (
	// ModePDF retrieves evidence from indexed documents.
	ModePDF Mode = "pdf"
	// ModeWeb retrieves evidence from a live web search.
	ModeWeb Mode = "web"
)

// ParseMode parses s case-insensitively into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePDF:
		return ModePDF, nil
	case ModeWeb:
		return ModeWeb, nil
	default:
		return "", fmt.Errorf("invalid system type: %q", s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModePDF || m == ModeWeb
}

// ModeDescriptors are the UI affordances bound to a mode.
type ModeDescriptors struct {
	Mode           Mode   `json:"mode"`
	ToggleLabel    string `json:"toggleLabel"`
	Placeholder    string `json:"placeholder"`
	ResultsHeading string `json:"resultsHeading"`

	PDFControlsVisible         bool `json:"pdfControlsVisible"`
	WebControlsVisible         bool `json:"webControlsVisible"`
	VectorStoreControlsVisible bool `json:"vectorStoreControlsVisible"`
}

// Descriptors returns the UI affordances of m. Anything that is not ModeWeb is described as ModePDF.
func (m Mode) Descriptors() ModeDescriptors {
	if m == ModeWeb {
		return ModeDescriptors{
			Mode:               ModeWeb,
			ToggleLabel:        "Web RAG",
			Placeholder:        "Ask anything to search the web...",
			ResultsHeading:     "Search Results",
			WebControlsVisible: true,
		}
	}
	return ModeDescriptors{
		Mode:                       ModePDF,
		ToggleLabel:                "PDF RAG",
		Placeholder:                "Ask a question about your PDFs...",
		ResultsHeading:             "Retrieved Documents",
		PDFControlsVisible:         true,
		VectorStoreControlsVisible: true,
	}
}
