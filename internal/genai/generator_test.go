package genai

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	"github.com/symbi-app/symbi-api/pkg/config"
)

type imageServiceStub struct {
	resp   *openai.ImagesResponse
	err    error
	prompt string
}

func (s *imageServiceStub) Generate(ctx context.Context, body openai.ImageGenerateParams, opts ...option.RequestOption) (*openai.ImagesResponse, error) {
	s.prompt = body.Prompt
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(config.GenAIConfig{Enabled: true}, zap.NewNop())
	require.Error(t, err)
}

func TestGenerateAppearanceDecodesImage(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	stub := &imageServiceStub{resp: &openai.ImagesResponse{
		Data: []openai.Image{{B64JSON: base64.StdEncoding.EncodeToString(payload)}},
	}}
	gen := &Generator{
		images:  stub,
		model:   "dall-e-3",
		size:    "1024x1024",
		timeout: time.Second,
		logger:  zap.NewNop(),
	}

	raw, err := gen.GenerateAppearance(context.Background(), &models.Pet{ID: "pet-1", Name: "Momo", Level: 1})
	require.NoError(t, err)
	assert.Equal(t, payload, raw)
	assert.Contains(t, stub.prompt, "Momo")
	assert.Contains(t, stub.prompt, "level 2")
}

func TestGenerateAppearanceEmptyResponse(t *testing.T) {
	gen := &Generator{
		images: &imageServiceStub{resp: &openai.ImagesResponse{}},
		logger: zap.NewNop(),
	}

	_, err := gen.GenerateAppearance(context.Background(), &models.Pet{ID: "pet-1", Name: "Momo"})
	require.Error(t, err)
}

func TestStaticGeneratorDeterministic(t *testing.T) {
	gen := NewStaticGenerator()
	pet := &models.Pet{ID: "pet-1", Level: 1}

	first, err := gen.GenerateAppearance(context.Background(), pet)
	require.NoError(t, err)
	second, err := gen.GenerateAppearance(context.Background(), pet)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	pet.Level = 2
	next, err := gen.GenerateAppearance(context.Background(), pet)
	require.NoError(t, err)
	assert.NotEqual(t, first, next)
}
