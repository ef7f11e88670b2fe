package genai

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"

	"github.com/symbi-app/symbi-api/internal/models"
)

// StaticGenerator renders a flat placeholder sprite without calling any
// external API. Used when image generation is switched off.
type StaticGenerator struct {
	size int
}

// NewStaticGenerator builds the placeholder generator.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{size: 256}
}

// GenerateAppearance produces a deterministic PNG derived from the pet's id
// and next level, so repeated evolutions still look distinct.
func (g *StaticGenerator) GenerateAppearance(_ context.Context, pet *models.Pet) ([]byte, error) {
	h := fnv.New32a()
	h.Write([]byte(pet.ID))
	h.Write([]byte{byte(pet.Level + 1)})
	seed := h.Sum32()

	fill := color.RGBA{
		R: uint8(seed >> 16),
		G: uint8(seed >> 8),
		B: uint8(seed),
		A: 255,
	}
	img := image.NewRGBA(image.Rect(0, 0, g.size, g.size))
	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
