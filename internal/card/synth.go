// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package card

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"image"

	"go.astrophena.name/cardbot/internal/api/google/gemini"

	"github.com/disintegration/imaging"
)

// defaultModel is the Gemini model used for card synthesis.
const defaultModel = "gemini-2.5-flash-image"

// defaultPrompt is the design brief sent along with the user photo.
const defaultPrompt = `Create a digital trading card using the uploaded image as the main character.

Include all design elements: name, element, HP, rarity, two attacks, flavor text, and themed background/frame.
Leave a clear area at the bottom right for a logo overlay.
Top bar: Name, HP, elemental symbol.
Main art: the uploaded image dynamically styled.
Attack boxes: two attacks with creative names, icons, and power.
Footer: weakness/resistance icons and flavor text above the reserved logo space.
Use foil or holographic effects for Rare/Ultra Rare/Legendary cards.
Do NOT place text or important elements in the reserved bottom right area.`

// Synthesizer generates card images from user photos via the Gemini API.
type Synthesizer struct {
	// Gemini is the API client used for generation. Required.
	Gemini *gemini.Client
	// Model overrides the model used for generation.
	Model string
	// Prompt overrides the design brief sent with the photo.
	Prompt string
}

// Synthesize sends photo together with the design brief to the generative
// model and returns the decoded card image. The photo is re-encoded to PNG
// before submission so the model always receives a lossless image with a
// known MIME type.
//
// It returns [ErrDecodePhoto] if photo is not a decodable image and
// [ErrSynthesis] if the API call fails or its response carries no image.
func (s *Synthesizer) Synthesize(ctx context.Context, photo []byte) (image.Image, error) {
	src, err := imaging.Decode(bytes.NewReader(photo))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodePhoto, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodePhoto, err)
	}

	resp, err := s.Gemini.GenerateContent(ctx, cmp.Or(s.Model, defaultModel), gemini.GenerateContentParams{
		Contents: []*gemini.Content{
			{
				Role: "user",
				Parts: []*gemini.Part{
					{Text: cmp.Or(s.Prompt, defaultPrompt)},
					{InlineData: &gemini.InlineData{
						MimeType: "image/png",
						Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
					}},
				},
			},
		},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &gemini.ImageConfig{AspectRatio: "3:4"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			b, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: undecodable image payload: %v", ErrSynthesis, err)
			}
			img, err := imaging.Decode(bytes.NewReader(b))
			if err != nil {
				return nil, fmt.Errorf("%w: undecodable image payload: %v", ErrSynthesis, err)
			}
			return img, nil
		}
	}
	return nil, fmt.Errorf("%w: no image in model response", ErrSynthesis)
}
