package embeddings

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder uses the go-openai SDK's flat (non-streaming)
// CreateEmbeddings call. Embeddings have no streaming contract, so using
// the SDK here doesn't bypass any hand-rolled-wire requirement the way it
// would for chat completions.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIEmbedder builds an embedder against the given API key and
// embedding model. dim is the caller-declared vector dimension used for
// mismatch validation elsewhere in the memory subsystem.
func NewOpenAIEmbedder(apiKey string, model openai.EmbeddingModel, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: openai.NewClient(apiKey), model: model, dim: dim}
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: o.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmbeddingUnavailable
	}
	return resp.Data[0].Embedding, nil
}

func (o *OpenAIEmbedder) Dimension() int { return o.dim }
func (o *OpenAIEmbedder) Name() string   { return "openai" }

var _ Provider = (*OpenAIEmbedder)(nil)
