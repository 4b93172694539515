package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvidence is returned when a query response cannot be turned into an EvidenceSet.
var ErrMalformedEvidence = errors.New("malformed evidence")

// EvidenceRecord is one retrieved item returned alongside a generated answer. It is implemented by
// PDFEvidence and WebEvidence only.
type EvidenceRecord interface {
	Mode() Mode
	Position() int
	Body() string

	evidence()
}

// PDFEvidence is a document excerpt retrieved from the vector store.
type PDFEvidence struct {
	Index   int
	Source  string
	Score   float64
	Content string
}

// WebEvidence is a web search result. Title and URL are empty when the server did not send them.
type WebEvidence struct {
	Index   int
	Title   string
	URL     string
	Content string
}

// EvidenceSet is the evidence of one query. All records share the variant matching Mode.
type EvidenceSet struct {
	Mode    Mode
	Records []EvidenceRecord
}

// Mode implements EvidenceRecord.
func (PDFEvidence) Mode() Mode { return ModePDF }

// Position implements EvidenceRecord.
func (e PDFEvidence) Position() int { return e.Index }

// Body implements EvidenceRecord.
func (e PDFEvidence) Body() string { return e.Content }

func (PDFEvidence) evidence() {}

// Mode implements EvidenceRecord.
func (WebEvidence) Mode() Mode { return ModeWeb }

// Position implements EvidenceRecord.
func (e WebEvidence) Position() int { return e.Index }

// Body implements EvidenceRecord.
func (e WebEvidence) Body() string { return e.Content }

func (WebEvidence) evidence() {}

type pdfEvidenceJSON struct {
	Index   int      `json:"index"`
	Source  string   `json:"source"`
	Score   *float64 `json:"score"`
	Content string   `json:"content"`
}

type webEvidenceJSON struct {
	Index   int     `json:"index"`
	Title   *string `json:"title"`
	URL     *string `json:"url"`
	Content string  `json:"content"`
}

// ParseEvidence decodes raw documents as the variant of mode. A pdf record without a score, or any record
// that does not decode, makes the whole set malformed.
func ParseEvidence(mode Mode, raw []json.RawMessage) (EvidenceSet, error) {
	if !mode.Valid() {
		return EvidenceSet{}, fmt.Errorf("%w: unknown mode %q", ErrMalformedEvidence, mode)
	}

	set := EvidenceSet{
		Mode:    mode,
		Records: make([]EvidenceRecord, 0, len(raw)),
	}
	for i, r := range raw {
		switch mode {
		case ModePDF:
			var doc pdfEvidenceJSON
			if err := json.Unmarshal(r, &doc); err != nil {
				return EvidenceSet{}, fmt.Errorf("%w: document %d: %w", ErrMalformedEvidence, i, err)
			}
			if doc.Score == nil {
				return EvidenceSet{}, fmt.Errorf("%w: document %d has no score", ErrMalformedEvidence, i)
			}
			set.Records = append(set.Records, PDFEvidence{
				Index:   doc.Index,
				Source:  doc.Source,
				Score:   *doc.Score,
				Content: doc.Content,
			})
		case ModeWeb:
			var doc webEvidenceJSON
			if err := json.Unmarshal(r, &doc); err != nil {
				return EvidenceSet{}, fmt.Errorf("%w: result %d: %w", ErrMalformedEvidence, i, err)
			}
			rec := WebEvidence{
				Index:   doc.Index,
				Content: doc.Content,
			}
			if doc.Title != nil {
				rec.Title = *doc.Title
			}
			if doc.URL != nil {
				rec.URL = *doc.URL
			}
			set.Records = append(set.Records, rec)
		}
	}
	return set, nil
}
