// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package card

import (
	"image"
	"strings"

	"go.astrophena.name/cardbot/internal/logger"
)

// Recognizer extracts text from an image. The production implementation is
// [TesseractRecognizer]; tests substitute their own.
type Recognizer interface {
	Text(img image.Image) (string, error)
}

// Auditor runs advisory text checks over synthesized cards. The generative
// model doesn't guarantee the prompted layout, so the bot inspects the
// rendered pixels and logs what it finds. Findings never block delivery, and
// any recognition failure counts as a pass.
type Auditor struct {
	// Recognizer extracts text from card images. Required.
	Recognizer Recognizer
	// Logf is used for logging. Required.
	Logf logger.Logf
}

// HasHPMarker reports whether the card contains a case-insensitive "HP"
// token anywhere in its recognized text.
func (a *Auditor) HasHPMarker(card image.Image) bool {
	text, err := a.Recognizer.Text(card)
	if err != nil {
		a.Logf("audit: text recognition failed: %v", err)
		return true
	}
	return strings.Contains(strings.ToLower(text), "hp")
}

// FlavorTextUnique reports whether no flavor-text line appears twice on the
// card. Candidate flavor lines are non-empty recognized lines of length
// strictly between 5 and 80 characters, excluding weakness/resistance rows.
func (a *Auditor) FlavorTextUnique(card image.Image) bool {
	text, err := a.Recognizer.Text(card)
	if err != nil {
		a.Logf("audit: text recognition failed: %v", err)
		return true
	}
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 5 || len(line) >= 80 {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "weak") || strings.Contains(lower, "resist") {
			continue
		}
		if seen[line] {
			return false
		}
		seen[line] = true
	}
	return true
}

// Audit runs all checks over card and logs the findings. It never fails.
func (a *Auditor) Audit(card image.Image) {
	if !a.HasHPMarker(card) {
		a.Logf("audit: no HP marker found on card")
	}
	if !a.FlavorTextUnique(card) {
		a.Logf("audit: duplicate flavor text line found on card")
	}
}
