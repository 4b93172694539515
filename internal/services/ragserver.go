package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MegaGrindStone/ragdesk/internal/models"
	"github.com/tmaxmax/go-sse"
	"go.uber.org/zap"
)

// RAGServer is a client for the question-answering server. It talks to whichever retrieval backend the
// server currently has active; the server is the authority on that mode.
type RAGServer struct {
	baseURL string

	client       *http.Client
	streamClient *http.Client

	logger *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type switchSystemRequest struct {
	System models.Mode `json:"system"`
}

type vectorStoreRequest struct {
	VectorStoreType string `json:"vector_store_type"`
}

type vectorStoreResponse struct {
	VectorStoreType string `json:"vector_store_type"`
}

type uploadResponse struct {
	Filename string `json:"filename"`
}

// NewRAGServer creates a client for the server at baseURL. Timeout bounds every request/response call;
// the answer stream is not bounded by it since it stays open for as long as the answer is generated.
func NewRAGServer(baseURL string, timeout time.Duration, logger *zap.Logger) (RAGServer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return RAGServer{}, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return RAGServer{}, fmt.Errorf("invalid server url %q: scheme and host are required", baseURL)
	}

	return RAGServer{
		baseURL:      strings.TrimRight(u.String(), "/"),
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		logger:       logger.With(zap.String("module", "ragserver")),
	}, nil
}

// Query fetches the evidence for req.
func (r RAGServer) Query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	var res models.QueryResponse
	if err := r.doJSON(ctx, http.MethodPost, "/query", req, &res); err != nil {
		return models.QueryResponse{}, err
	}
	return res, nil
}

// SwitchSystem asks the server to make mode the active retrieval backend.
func (r RAGServer) SwitchSystem(ctx context.Context, mode models.Mode) error {
	return r.doJSON(ctx, http.MethodPost, "/switch-system", switchSystemRequest{System: mode}, nil)
}

// Reindex forces the server to rebuild its document index.
func (r RAGServer) Reindex(ctx context.Context) error {
	return r.doJSON(ctx, http.MethodPost, "/index", nil, nil)
}

// Models lists the model identifiers the server can answer with.
func (r RAGServer) Models(ctx context.Context) ([]string, error) {
	var ms []string
	if err := r.doJSON(ctx, http.MethodGet, "/models", nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// VectorStores lists the vector store types the server supports.
func (r RAGServer) VectorStores(ctx context.Context) ([]string, error) {
	var vs []string
	if err := r.doJSON(ctx, http.MethodGet, "/vector-stores", nil, &vs); err != nil {
		return nil, err
	}
	return vs, nil
}

// SwitchVectorStore switches the vector store used in pdf mode and returns the type the server settled on.
func (r RAGServer) SwitchVectorStore(ctx context.Context, storeType string) (string, error) {
	var res vectorStoreResponse
	err := r.doJSON(ctx, http.MethodPost, "/switch-vector-store", vectorStoreRequest{VectorStoreType: storeType}, &res)
	if err != nil {
		return "", err
	}
	return res.VectorStoreType, nil
}

// Upload sends a file to be stored and indexed, and returns the file name the server stored it under.
func (r RAGServer) Upload(ctx context.Context, filename string, content io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return "", fmt.Errorf("error writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("error closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/upload", &body)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res uploadResponse
	if err := r.do(req, "/upload", &res); err != nil {
		return "", err
	}
	return res.Filename, nil
}

// Stream opens the answer stream for req. The iterator yields every event payload in transport order,
// including the terminal "[DONE]" marker; interpreting them is up to the caller. Stopping the iteration
// closes the connection.
func (r RAGServer) Stream(ctx context.Context, req models.QueryRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		q := url.Values{}
		q.Set("question", req.Question)
		q.Set("model", req.Model)

		hr, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/stream?"+q.Encode(), nil)
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}
		hr.Header.Set("Accept", "text/event-stream")
		hr.Header.Set("Cache-Control", "no-cache")

		resp, err := r.streamClient.Do(hr)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", fmt.Errorf("unexpected stream status: %s", resp.Status))
			return
		}

		r.logger.Debug("Stream opened", zap.String("question", req.Question), zap.String("model", req.Model))

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading stream: %w", err))
				return
			}

			r.logger.Debug("Received event", zap.String("data", ev.Data))

			if !yield(ev.Data, nil) {
				return
			}
		}
	}
}

func (r RAGServer) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return r.do(req, path, out)
}

// do sends req and decodes the body whatever the status code is: the server reports application errors
// as JSON with 4xx/5xx codes.
func (r RAGServer) do(req *http.Request, endpoint string, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	var e errorResponse
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		r.logger.Warn("Server returned an error",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("error", e.Error))
		return &models.ServerError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    e.Error,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status from %s: %s", endpoint, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}
