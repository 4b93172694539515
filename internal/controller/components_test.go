package controller_test

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MegaGrindStone/ragdesk/internal/controller"
	"github.com/MegaGrindStone/ragdesk/internal/models"
)

type memoryStore struct {
	added   []models.Message
	updated []models.Message
	err     error
}

func (s *memoryStore) AddMessage(_ context.Context, _ string, msg models.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.added = append(s.added, msg)
	return "stored-" + msg.ID, nil
}

func (s *memoryStore) UpdateMessage(_ context.Context, _ string, msg models.Message) error {
	if s.err != nil {
		return s.err
	}
	s.updated = append(s.updated, msg)
	return nil
}

func fragments(fs ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range fs {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func TestRenderResults(t *testing.T) {
	tests := []struct {
		name string
		set  models.EvidenceSet
		want controller.ResultList
	}{
		{
			name: "empty pdf set",
			set:  models.EvidenceSet{Mode: models.ModePDF},
			want: controller.ResultList{
				Heading:     "Retrieved Documents",
				Empty:       true,
				Placeholder: controller.NoResultsText,
			},
		},
		{
			name: "empty web set",
			set:  models.EvidenceSet{Mode: models.ModeWeb, Records: []models.EvidenceRecord{}},
			want: controller.ResultList{
				Heading:     "Search Results",
				Empty:       true,
				Placeholder: controller.NoResultsText,
			},
		},
		{
			name: "pdf score is padded to four digits",
			set: models.EvidenceSet{
				Mode: models.ModePDF,
				Records: []models.EvidenceRecord{
					models.PDFEvidence{Index: 1, Source: "a.pdf", Score: 0.5, Content: "half"},
					models.PDFEvidence{Index: 2, Source: "b.pdf", Score: 0.123456789, Content: "more"},
				},
			},
			want: controller.ResultList{
				Heading: "Retrieved Documents",
				Cards: []controller.ResultCard{
					{Header: "Document 1 (Source: a.pdf)", Score: "Score: 0.5000", Body: "half"},
					{Header: "Document 2 (Source: b.pdf)", Score: "Score: 0.1235", Body: "more"},
				},
			},
		},
		{
			name: "web records with and without title",
			set: models.EvidenceSet{
				Mode: models.ModeWeb,
				Records: []models.EvidenceRecord{
					models.WebEvidence{Index: 1, Title: "Go", URL: "https://go.dev", Content: "site"},
					models.WebEvidence{Index: 3, Content: "untitled"},
				},
			},
			want: controller.ResultList{
				Heading: "Search Results",
				Cards: []controller.ResultCard{
					{Header: "Go", URL: "https://go.dev", Body: "site"},
					{Header: "Result 3", Body: "untitled"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, controller.RenderResults(tt.set))
		})
	}
}

func TestRenderResultsDoesNotModifySet(t *testing.T) {
	records := []models.EvidenceRecord{
		models.WebEvidence{Index: 3, Content: "untitled"},
	}
	set := models.EvidenceSet{Mode: models.ModeWeb, Records: records}

	controller.RenderResults(set)
	assert.Equal(t, models.WebEvidence{Index: 3, Content: "untitled"}, set.Records[0])
}

func TestResultListText(t *testing.T) {
	empty := controller.RenderResults(models.EvidenceSet{Mode: models.ModePDF})
	assert.Equal(t, "Retrieved Documents\nNo relevant documents found.\n", empty.Text())

	list := controller.RenderResults(models.EvidenceSet{
		Mode: models.ModeWeb,
		Records: []models.EvidenceRecord{
			models.WebEvidence{Index: 1, Title: "Go", URL: "https://go.dev", Content: "site"},
		},
	})
	assert.Equal(t, "Search Results\n\nGo\nhttps://go.dev\nsite\n", list.Text())
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		current     models.Mode
		declared    models.Mode
		want        models.Mode
		wantChanged bool
	}{
		{name: "nothing declared", current: models.ModePDF, declared: "", want: models.ModePDF},
		{name: "same mode", current: models.ModeWeb, declared: models.ModeWeb, want: models.ModeWeb},
		{
			name:        "server overrides",
			current:     models.ModePDF,
			declared:    models.ModeWeb,
			want:        models.ModeWeb,
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := controller.Reconcile(tt.current, tt.declared)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantChanged, changed)

			again, changedAgain := controller.Reconcile(got, tt.declared)
			assert.Equal(t, got, again)
			assert.False(t, changedAgain)
		})
	}
}

func TestStreamSessionApply(t *testing.T) {
	s := controller.NewStreamSession(models.QueryRequest{Question: "q", Model: "m"})
	assert.True(t, s.IsOpen())

	assert.False(t, s.Apply("Connection established"))
	assert.False(t, s.Apply(" done"))
	assert.True(t, s.Apply(controller.DoneSentinel))

	assert.True(t, s.IsDone())
	assert.False(t, s.IsOpen())
	assert.Equal(t, "Connection established done", s.Text())

	assert.True(t, s.Apply("late"))
	s.Fail(errors.New("late failure"))
	assert.Equal(t, "Connection established done", s.Text())
	assert.NoError(t, s.Err())
}

func TestStreamSessionFail(t *testing.T) {
	s := controller.NewStreamSession(models.QueryRequest{Question: "q"})
	s.Apply("partial")

	failure := errors.New("reset")
	s.Fail(failure)
	assert.False(t, s.IsOpen())
	assert.False(t, s.IsDone())
	require.ErrorIs(t, s.Err(), failure)

	assert.False(t, s.Apply("more"))
	assert.Equal(t, "partial", s.Text())
}

func TestStreamSessionRunIsAssociative(t *testing.T) {
	split := controller.NewStreamSession(models.QueryRequest{Question: "q"})
	var seen []string
	require.NoError(t, split.Run(fragments("Hel", "lo", controller.DoneSentinel), func(text string) {
		seen = append(seen, text)
	}))

	whole := controller.NewStreamSession(models.QueryRequest{Question: "q"})
	require.NoError(t, whole.Run(fragments("Hello", controller.DoneSentinel), func(string) {}))

	assert.Equal(t, whole.Text(), split.Text())
	assert.Equal(t, []string{"Hel", "Hello"}, seen)
}

func TestStreamSessionRunStopsAtSentinel(t *testing.T) {
	s := controller.NewStreamSession(models.QueryRequest{Question: "q"})

	pulled := 0
	seq := func(yield func(string, error) bool) {
		for _, f := range []string{"A", controller.DoneSentinel, "B"} {
			pulled++
			if !yield(f, nil) {
				return
			}
		}
	}
	require.NoError(t, s.Run(seq, func(string) {}))
	assert.Equal(t, 2, pulled)
	assert.Equal(t, "A", s.Text())
}

func TestStreamSessionRunWithoutSentinel(t *testing.T) {
	s := controller.NewStreamSession(models.QueryRequest{Question: "q"})

	err := s.Run(fragments("A"), func(string) {})
	require.ErrorIs(t, err, controller.ErrStreamEnded)
	assert.False(t, s.IsOpen())
	assert.False(t, s.IsDone())
	assert.Equal(t, "A", s.Text())
}

func TestTranscript(t *testing.T) {
	store := &memoryStore{}
	view := &recordingView{}
	tr := controller.NewTranscript(view, store, "conv", zaptest.NewLogger(t))

	user := tr.Append(models.Message{Role: models.RoleUser, Text: "hi", State: models.StreamingStateEnded})
	assert.Contains(t, user.ID, "stored-")
	assert.False(t, user.Timestamp.IsZero())

	asst := tr.Append(models.Message{Role: models.RoleAssistant, Text: models.PlaceholderText, State: models.StreamingStateLoading})
	require.Len(t, store.added, 2)

	_, err := tr.Update(user.ID, func(m *models.Message) { m.Text = "changed" })
	require.ErrorIs(t, err, controller.ErrMessageFrozen)

	_, err = tr.Update("missing", func(*models.Message) {})
	require.ErrorIs(t, err, controller.ErrMessageNotFound)

	_, err = tr.Update(asst.ID, func(m *models.Message) {
		m.Text = "Hel"
		m.State = models.StreamingStateStreaming
	})
	require.NoError(t, err)
	assert.Empty(t, store.updated)

	_, err = tr.Update(asst.ID, func(m *models.Message) {
		m.Text = "Hello"
		m.State = models.StreamingStateEnded
	})
	require.NoError(t, err)
	require.Len(t, store.updated, 1)
	assert.Equal(t, "Hello", store.updated[0].Text)

	_, err = tr.Update(asst.ID, func(m *models.Message) { m.Text = "again" })
	require.ErrorIs(t, err, controller.ErrMessageFrozen)

	msgs := tr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "Hello", msgs[1].Text)
	assert.Len(t, view.updatesOf(asst.ID), 2)
}

func TestTranscriptStoreFailure(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	tr := controller.NewTranscript(controller.NopView{}, store, "conv", zaptest.NewLogger(t))

	msg := tr.Append(models.Message{ID: "local", Role: models.RoleUser, Text: "hi"})
	assert.Equal(t, "local", msg.ID)
	assert.Len(t, tr.Messages(), 1)
}

func TestControlsUpload(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "report.PDF")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600))
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("notes"), 0o600))

	t.Run("not a pdf", func(t *testing.T) {
		srv := &fakeServer{}
		c, view := newController(t, srv, models.ModePDF)

		_, err := c.Controls.Upload(context.Background(), txt)
		require.Error(t, err)
		assert.Empty(t, srv.uploads)

		ns := view.notified()
		require.Len(t, ns, 1)
		assert.Equal(t, "Please select a PDF file to upload.", ns[0].Message)
	})

	t.Run("success", func(t *testing.T) {
		srv := &fakeServer{}
		c, view := newController(t, srv, models.ModePDF)

		name, err := c.Controls.Upload(context.Background(), pdf)
		require.NoError(t, err)
		assert.Equal(t, "report.PDF", name)
		assert.Equal(t, map[string]string{"report.PDF": "%PDF-1.4"}, srv.uploads)

		ns := view.notified()
		require.Len(t, ns, 1)
		assert.Equal(t, "File report.PDF uploaded and indexed successfully.", ns[0].Message)
		assert.False(t, ns[0].IsError)
	})

	t.Run("server error", func(t *testing.T) {
		srv := &fakeServer{uploadErr: &models.ServerError{Endpoint: "/upload", Message: "Only PDF files are allowed"}}
		c, view := newController(t, srv, models.ModePDF)

		_, err := c.Controls.Upload(context.Background(), pdf)
		require.Error(t, err)

		ns := view.notified()
		require.Len(t, ns, 1)
		assert.Equal(t, "Upload Error", ns[0].Title)
		assert.Equal(t, "Only PDF files are allowed", ns[0].Message)
	})
}

func TestControlsReindex(t *testing.T) {
	srv := &fakeServer{}
	c, view := newController(t, srv, models.ModePDF)

	require.NoError(t, c.Controls.Reindex(context.Background()))
	srv.reindexErr = errors.New("connection refused")
	require.Error(t, c.Controls.Reindex(context.Background()))

	ns := view.notified()
	require.Len(t, ns, 2)
	assert.Equal(t, "Documents reindexed successfully.", ns[0].Message)
	assert.Equal(t, "Indexing Error", ns[1].Title)
	assert.Equal(t, "An error occurred during indexing.", ns[1].Message)
}

func TestControlsRefreshModels(t *testing.T) {
	srv := &fakeServer{modelList: []string{"llama3", "mistral"}}
	c, view := newController(t, srv, models.ModePDF)

	ms, err := c.Controls.RefreshModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, ms)

	srv.modelsErr = errors.New("connection refused")
	_, err = c.Controls.RefreshModels(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, c.Controls.Models())

	ns := view.notified()
	require.Len(t, ns, 2)
	assert.Equal(t, "Found 2 available models.", ns[0].Message)
	assert.Equal(t, "Failed to fetch available models.", ns[1].Message)
	assert.True(t, ns[1].IsError)
}

func TestControlsModelsFromOtherSource(t *testing.T) {
	srv := &fakeServer{modelList: []string{"server-model"}}
	other := &fakeServer{modelList: []string{"local-model"}}
	c := controller.New(controller.Options{
		Server:   srv,
		Models:   other,
		Renderer: htmlRenderer{},
		Logger:   zaptest.NewLogger(t),
	})

	ms, err := c.Controls.RefreshModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"local-model"}, ms)
}

func TestControlsSwitchVectorStore(t *testing.T) {
	srv := &fakeServer{}
	c, view := newController(t, srv, models.ModePDF)
	c.Modes.SetVectorStore("faiss")

	require.NoError(t, c.Controls.SwitchVectorStore(context.Background(), "chroma"))
	assert.Equal(t, "chroma", c.Modes.VectorStore())

	srv.vectorStoreErr = &models.ServerError{Endpoint: "/switch-vector-store", Message: "Invalid vector store type"}
	require.Error(t, c.Controls.SwitchVectorStore(context.Background(), "pinecone"))
	assert.Equal(t, "chroma", c.Modes.VectorStore())

	ns := view.notified()
	require.Len(t, ns, 2)
	assert.Equal(t, "Switched to CHROMA vector store.", ns[0].Message)
	assert.Equal(t, "Vector Store Error", ns[1].Title)
	assert.Equal(t, "Invalid vector store type", ns[1].Message)
}

func TestNotificationCenter(t *testing.T) {
	view := &recordingView{}
	nc := controller.NewNotificationCenter(view, zaptest.NewLogger(t))

	_, ok := nc.Current()
	assert.False(t, ok)

	nc.Success("Success", "first")
	nc.Error("Error", "second")

	n, ok := nc.Current()
	require.True(t, ok)
	assert.Equal(t, "second", n.Message)
	assert.True(t, n.IsError)
	assert.False(t, n.Time.IsZero())
	assert.Len(t, view.notified(), 2)
}
