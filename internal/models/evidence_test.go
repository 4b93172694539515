package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MegaGrindStone/ragdesk/internal/models"
)

func rawDocs(t *testing.T, docs ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		require.True(t, json.Valid([]byte(d)), "invalid test json: %s", d)
		out[i] = json.RawMessage(d)
	}
	return out
}

func TestParseEvidence(t *testing.T) {
	tests := []struct {
		name    string
		mode    models.Mode
		docs    []string
		want    []models.EvidenceRecord
		wantErr bool
	}{
		{
			name: "pdf record",
			mode: models.ModePDF,
			docs: []string{`{"index":1,"source":"a.pdf","score":0.91,"content":"X is..."}`},
			want: []models.EvidenceRecord{
				models.PDFEvidence{Index: 1, Source: "a.pdf", Score: 0.91, Content: "X is..."},
			},
		},
		{
			name: "web record with null title",
			mode: models.ModeWeb,
			docs: []string{`{"index":2,"title":null,"url":"https://example.com","content":"body"}`},
			want: []models.EvidenceRecord{
				models.WebEvidence{Index: 2, URL: "https://example.com", Content: "body"},
			},
		},
		{
			name: "web record without url",
			mode: models.ModeWeb,
			docs: []string{`{"index":1,"title":"Go","content":"body"}`},
			want: []models.EvidenceRecord{
				models.WebEvidence{Index: 1, Title: "Go", Content: "body"},
			},
		},
		{
			name:    "pdf record without score",
			mode:    models.ModePDF,
			docs:    []string{`{"index":1,"title":"Go","url":"https://go.dev","content":"body"}`},
			wantErr: true,
		},
		{
			name:    "record of the wrong shape",
			mode:    models.ModeWeb,
			docs:    []string{`[1,2,3]`},
			wantErr: true,
		},
		{
			name: "empty set",
			mode: models.ModePDF,
			want: []models.EvidenceRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := models.ParseEvidence(tt.mode, rawDocs(t, tt.docs...))
			if tt.wantErr {
				require.ErrorIs(t, err, models.ErrMalformedEvidence)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mode, set.Mode)
			assert.Equal(t, tt.want, set.Records)
			for _, r := range set.Records {
				assert.Equal(t, tt.mode, r.Mode())
			}
		})
	}
}

func TestQueryResponseEvidence(t *testing.T) {
	web := models.QueryResponse{
		Documents:    rawDocs(t, `{"index":1,"title":"t","url":"u","content":"c"}`),
		ActiveSystem: "web",
	}
	set, err := web.Evidence(models.ModePDF)
	require.NoError(t, err)
	assert.Equal(t, models.ModeWeb, set.Mode)

	undeclared := models.QueryResponse{
		Documents: rawDocs(t, `{"index":1,"source":"a.pdf","score":0.5,"content":"c"}`),
	}
	set, err = undeclared.Evidence(models.ModePDF)
	require.NoError(t, err)
	assert.Equal(t, models.ModePDF, set.Mode)

	bogus := models.QueryResponse{ActiveSystem: "ftp"}
	_, err = bogus.Evidence(models.ModePDF)
	require.ErrorIs(t, err, models.ErrMalformedEvidence)
}

func TestNewQueryRequest(t *testing.T) {
	req, err := models.NewQueryRequest("  What is X?\n", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.QueryRequest{Question: "What is X?", Model: "m1"}, req)

	_, err = models.NewQueryRequest(" \t ", "m1")
	require.ErrorIs(t, err, models.ErrEmptyQuestion)
}

func TestParseMode(t *testing.T) {
	m, err := models.ParseMode("WEB")
	require.NoError(t, err)
	assert.Equal(t, models.ModeWeb, m)

	_, err = models.ParseMode("gopher")
	require.Error(t, err)

	assert.Equal(t, "Search Results", models.ModeWeb.Descriptors().ResultsHeading)
	assert.True(t, models.ModePDF.Descriptors().VectorStoreControlsVisible)
	assert.False(t, models.ModeWeb.Descriptors().VectorStoreControlsVisible)
}
