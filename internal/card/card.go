// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package card turns user photos into stylized trading cards.
//
// It covers the whole card pipeline past the chat transport: synthesizing a
// card image from a photo via the Gemini API (see [Synthesizer]), running
// advisory text checks over the result (see [Auditor]) and blending a branding
// overlay onto the card (see [Compose]).
package card

import "errors"

// Errors returned by this package. They are matched with [errors.Is] at the
// request boundary to decide what to tell the user.
var (
	// ErrInvalidLayout means compositing parameters are out of range or the
	// overlay asset can't be decoded.
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrAssetNotFound means the overlay asset can't be loaded.
	ErrAssetNotFound = errors.New("overlay asset not found")
	// ErrSynthesis means the generative API call failed or returned an
	// unusable response.
	ErrSynthesis = errors.New("card synthesis failed")
	// ErrDecodePhoto means the user-submitted photo can't be decoded.
	ErrDecodePhoto = errors.New("can't decode photo")
)
