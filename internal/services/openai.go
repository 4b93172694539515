package services

import (
	"context"
	"fmt"
	"slices"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI lists the models of an OpenAI compatible endpoint, for deployments where the answering server
// is backed by such an endpoint rather than a local Ollama.
type OpenAI struct {
	client *goopenai.Client
}

// NewOpenAI creates a lister. An empty baseURL keeps the official OpenAI endpoint.
func NewOpenAI(apiKey, baseURL string) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		client: goopenai.NewClientWithConfig(cfg),
	}
}

// Models returns the sorted model identifiers of the endpoint.
func (o OpenAI) Models(ctx context.Context) ([]string, error) {
	res, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing openai models: %w", err)
	}

	ids := make([]string, 0, len(res.Models))
	for _, m := range res.Models {
		ids = append(ids, m.ID)
	}
	slices.Sort(ids)
	return ids, nil
}
