// Package genai renders pet appearance images through the OpenAI Images API.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	"github.com/symbi-app/symbi-api/pkg/config"
)

// imageService defines the minimal interface for image generation.
type imageService interface {
	Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error)
}

// Generator produces appearance artwork for evolving pets.
type Generator struct {
	images  imageService
	model   openai.ImageModel
	size    openai.ImageGenerateParamsSize
	timeout time.Duration
	logger  *zap.Logger
}

// NewGenerator initializes a generator from configuration. Returns an error
// when generation is enabled without an API key.
func NewGenerator(cfg config.GenAIConfig, logger *zap.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Generator{
		images:  &client.Images,
		model:   openai.ImageModel(cfg.Model),
		size:    openai.ImageGenerateParamsSize(cfg.Size),
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// GenerateAppearance renders a PNG for the pet's next evolution level.
func (g *Generator) GenerateAppearance(ctx context.Context, pet *models.Pet) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	prompt := buildPrompt(pet)
	resp, err := g.images.Generate(ctx, openai.ImageGenerateParams{
		Model:          g.model,
		Prompt:         prompt,
		N:              openai.Int(1),
		Size:           g.size,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: image request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("genai: empty image response")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("genai: decode image payload: %w", err)
	}
	g.logger.Info("appearance generated",
		zap.String("pet_id", pet.ID),
		zap.Int("level", pet.Level+1),
		zap.Int("bytes", len(raw)))
	return raw, nil
}

func buildPrompt(pet *models.Pet) string {
	return fmt.Sprintf(
		"A cute digital companion creature named %s at evolution level %d, "+
			"rendered as soft pastel 3D art on a plain light background, "+
			"friendly expression, suitable as a mobile app avatar.",
		pet.Name, pet.Level+1,
	)
}
