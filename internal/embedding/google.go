package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/thebtf/storyline/pkg/models"
)

// GoogleConfig configures the Vertex AI embedding client.
type GoogleConfig struct {
	Project  string
	Location string
	Model    string // default: text-embedding-004
}

// GoogleEmbedder generates embeddings with Google's text-embedding models
// via Vertex AI, requesting the reduced 768-dimension output.
type GoogleEmbedder struct {
	client *genai.Client
	model  string
}

// NewGoogleEmbedder creates a Vertex AI embedding client.
func NewGoogleEmbedder(ctx context.Context, cfg GoogleConfig) (*GoogleEmbedder, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("embedding: project is required")
	}
	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.Project,
		Location: location,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GoogleEmbedder{client: client, model: model}, nil
}

// Embed implements Embedder.
func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := CleanText(text)
	if clean == "" {
		return nil, ErrEmptyText
	}

	dim := int32(models.EmbeddingDim)
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		genai.Text(clean),
		&genai.EmbedContentConfig{
			TaskType:             "RETRIEVAL_DOCUMENT",
			OutputDimensionality: &dim,
		})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding response contains no vectors")
	}

	values := resp.Embeddings[0].Values
	if len(values) != models.EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(values), models.EmbeddingDim)
	}
	return values, nil
}
