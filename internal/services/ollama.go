package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Ollama lists the models installed on an Ollama host. It is used instead of the server's /models endpoint
// when the client is configured to ask the model host directly.
type Ollama struct {
	host string

	client *api.Client
}

// NewOllama creates a lister for the Ollama server at host. An empty host falls back to the OLLAMA_HOST
// environment variable and then to the Ollama default address.
func NewOllama(host string) (Ollama, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return Ollama{}, fmt.Errorf("error creating ollama client: %w", err)
		}
		return Ollama{client: client}, nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host: %w", err)
	}

	return Ollama{
		host:   host,
		client: api.NewClient(u, &http.Client{}),
	}, nil
}

// Models returns the names of the models installed on the host.
func (o Ollama) Models(ctx context.Context) ([]string, error) {
	res, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing ollama models: %w", err)
	}

	names := make([]string, 0, len(res.Models))
	for _, m := range res.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
