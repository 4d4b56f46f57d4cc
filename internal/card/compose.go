// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package card

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/disintegration/imaging"
)

// Style selects how the overlay asset is rendered before blending.
type Style string

// Supported overlay styles.
const (
	// StylePlain blends the overlay as-is.
	StylePlain Style = "plain"
	// StyleStamp crops the overlay to a circle, like an authenticity stamp.
	StyleStamp Style = "stamp"
	// StyleFoil crops the overlay to a circle and applies a holographic foil
	// effect on top.
	StyleFoil Style = "foil"
)

// Layout describes where and how the overlay is placed on the card. All
// fractional fields are normalized to card dimensions.
type Layout struct {
	// Scale is the overlay width as a fraction of the card width. Must be in
	// (0, 1].
	Scale float64
	// Margin is the inset from the bottom-right corner as a fraction of the
	// card dimensions. Must be non-negative.
	Margin float64
	// XOffset and YOffset fine-tune the position as fractions of the card
	// width and height respectively. Positive values push the overlay right
	// and down.
	XOffset float64
	YOffset float64
	// Style is the overlay rendering style. Empty means [StylePlain].
	Style Style
}

// Validate reports whether the layout parameters are usable. It is called by
// [Compose], but callers that read the layout from configuration should call
// it at startup to fail fast.
func (l Layout) Validate() error {
	if l.Scale <= 0 || l.Scale > 1 {
		return fmt.Errorf("%w: scale %v not in (0, 1]", ErrInvalidLayout, l.Scale)
	}
	if l.Margin < 0 {
		return fmt.Errorf("%w: negative margin %v", ErrInvalidLayout, l.Margin)
	}
	switch l.Style {
	case "", StylePlain, StyleStamp, StyleFoil:
	default:
		return fmt.Errorf("%w: unknown style %q", ErrInvalidLayout, l.Style)
	}
	return nil
}

// Compose blends overlay onto a copy of card per layout and returns the
// result. Neither card nor overlay is modified.
//
// The overlay is resized to layout.Scale of the card width with aspect ratio
// preserved, optionally restyled (see [Style]), anchored to the bottom-right
// corner and alpha-composited onto the card. A placement that would fall
// outside the card is clamped to the nearest in-bounds position.
func Compose(card, overlay image.Image, layout Layout) (*image.NRGBA, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	cb, ob := card.Bounds(), overlay.Bounds()
	if cb.Dx() < 1 || cb.Dy() < 1 {
		return nil, fmt.Errorf("%w: empty card", ErrInvalidLayout)
	}
	if ob.Dx() < 1 || ob.Dy() < 1 {
		return nil, fmt.Errorf("%w: empty overlay", ErrInvalidLayout)
	}

	w := int(math.Round(float64(cb.Dx()) * layout.Scale))
	if w < 1 {
		w = 1
	}
	// Height 0 makes imaging preserve the aspect ratio (Lanczos, so small
	// logos don't alias).
	asset := imaging.Resize(overlay, w, 0, imaging.Lanczos)

	switch layout.Style {
	case StyleStamp:
		asset = CircleCrop(asset)
	case StyleFoil:
		asset = foil(CircleCrop(asset))
	}

	w, h := asset.Bounds().Dx(), asset.Bounds().Dy()
	x := cb.Dx() - w - int(math.Round(layout.Margin*float64(cb.Dx()))) + int(math.Round(layout.XOffset*float64(cb.Dx())))
	y := cb.Dy() - h - int(math.Round(layout.Margin*float64(cb.Dy()))) + int(math.Round(layout.YOffset*float64(cb.Dy())))
	x = clamp(x, 0, max(0, cb.Dx()-w))
	y = clamp(y, 0, max(0, cb.Dy()-h))

	return imaging.Overlay(card, asset, image.Pt(x, y), 1), nil
}

// CircleCrop crops img to a centered square of side min(width, height) and
// masks it to a disc of that diameter. Pixels outside the disc get zero
// alpha. The crop is applied after any resize so the mask boundary stays
// crisp.
func CircleCrop(img image.Image) *image.NRGBA {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	out := imaging.CropCenter(img, side, side)

	r := float64(side) / 2
	for y := 0; y < side; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+side*4]
		for x := 0; x < side; x++ {
			dx := float64(x) + 0.5 - r
			dy := float64(y) + 0.5 - r
			if dx*dx+dy*dy > r*r {
				i := x * 4
				row[i], row[i+1], row[i+2], row[i+3] = 0, 0, 0, 0
			}
		}
	}
	return out
}

// foil applies the holographic foil effect to the overlay buffer: emboss, a
// hue-sweeping gradient at partial opacity, a mild brightness/contrast bump
// and a diagonal light streak. Every pass is a fixed function of pixel
// coordinates, so the result is deterministic. The card itself is never
// touched.
func foil(img *image.NRGBA) *image.NRGBA {
	out := imaging.Convolve3x3(img, [9]float64{
		-1, -1, 0,
		-1, 1, 1,
		0, 1, 1,
	}, nil)
	out = holoGradient(out)
	out = imaging.AdjustBrightness(out, 4)
	out = imaging.AdjustContrast(out, 10)
	return lightStreak(out)
}

// holoGradient blends a full hue sweep (left edge red, cycling through the
// spectrum towards the right edge) over img at partial opacity, weighted by
// each pixel's own alpha so transparent corners stay transparent.
func holoGradient(img *image.NRGBA) *image.NRGBA {
	const opacity = 0.35
	out := imaging.Clone(img)
	b := out.Bounds()
	for x := 0; x < b.Dx(); x++ {
		gr, gg, gb := hueRGB(360 * float64(x) / float64(b.Dx()))
		for y := 0; y < b.Dy(); y++ {
			i := y*out.Stride + x*4
			a := float64(out.Pix[i+3]) / 255
			f := opacity * a
			out.Pix[i] = mix(out.Pix[i], gr, f)
			out.Pix[i+1] = mix(out.Pix[i+1], gg, f)
			out.Pix[i+2] = mix(out.Pix[i+2], gb, f)
		}
	}
	return out
}

// lightStreak composites a diagonal white band over img using screen
// blending, brightest along the line x+y = (w+h)/2 and fading linearly to
// zero over a quarter of the diagonal on each side.
func lightStreak(img *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	diag := float64(b.Dx() + b.Dy())
	center := diag / 2
	halfWidth := diag / 4
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			t := 1 - math.Abs(float64(x+y)-center)/halfWidth
			if t <= 0 {
				continue
			}
			i := y*out.Stride + x*4
			if out.Pix[i+3] == 0 {
				continue
			}
			s := t * 0.5 * 255
			out.Pix[i] = screen(out.Pix[i], s)
			out.Pix[i+1] = screen(out.Pix[i+1], s)
			out.Pix[i+2] = screen(out.Pix[i+2], s)
		}
	}
	return out
}

// hueRGB converts a hue in degrees (saturation and value fixed at 1) to RGB.
func hueRGB(h float64) (r, g, b uint8) {
	h = math.Mod(h, 360) / 60
	f := h - math.Floor(h)
	q := uint8(math.Round(255 * (1 - f)))
	t := uint8(math.Round(255 * f))
	switch int(h) {
	case 0:
		return 255, t, 0
	case 1:
		return q, 255, 0
	case 2:
		return 0, 255, t
	case 3:
		return 0, q, 255
	case 4:
		return t, 0, 255
	default:
		return 255, 0, q
	}
}

func mix(base, top uint8, f float64) uint8 {
	return uint8(math.Round(float64(base)*(1-f) + float64(top)*f))
}

func screen(base uint8, light float64) uint8 {
	return uint8(math.Round(255 - (255-float64(base))*(255-light)/255))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodePNG serializes img to PNG, the lossless format the bot replies with.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadOverlay reads and decodes the overlay asset at path. It returns
// [ErrAssetNotFound] if the file can't be read and [ErrInvalidLayout] if it
// can't be decoded. The returned image is safe to share across requests since
// [Compose] never mutates it.
func LoadOverlay(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetNotFound, err)
	}
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidLayout, path, err)
	}
	return img, nil
}
