package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// mediaModels is the slice of the genai client the producer needs. It exists
// so tests can substitute a fake.
type mediaModels interface {
	GenerateImages(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// clientModels adapts *genai.Client to mediaModels.
type clientModels struct {
	client *genai.Client
}

func newClientModels(ctx context.Context, apiKey string) (*clientModels, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &clientModels{client: client}, nil
}

func (c *clientModels) GenerateImages(
	ctx context.Context,
	model, prompt string,
	cfg *genai.GenerateImagesConfig,
) (*genai.GenerateImagesResponse, error) {
	return c.client.Models.GenerateImages(ctx, model, prompt, cfg)
}

func (c *clientModels) GenerateVideos(
	ctx context.Context,
	model, prompt string,
	cfg *genai.GenerateVideosConfig,
) (*genai.GenerateVideosOperation, error) {
	return c.client.Models.GenerateVideos(ctx, model, prompt, nil, cfg)
}

func (c *clientModels) GetVideosOperation(
	ctx context.Context,
	op *genai.GenerateVideosOperation,
) (*genai.GenerateVideosOperation, error) {
	return c.client.Operations.GetVideosOperation(ctx, op, nil)
}
