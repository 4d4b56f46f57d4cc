// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gate tracks which chats are currently allowed to submit a photo.
//
// A chat becomes armed when the user asks for a card and disarmed the moment
// a photo is accepted, so each trigger admits exactly one photo. The state
// lives in process memory for the lifetime of the bot.
package gate

import "go.astrophena.name/cardbot/internal/util/syncx"

// Store keeps the per-chat gate state. The zero value is not usable, call
// [New].
type Store struct {
	armed *syncx.Protected[map[int64]bool]
}

// New returns a new [Store] with all gates closed.
func New() *Store {
	return &Store{armed: syncx.Protect(make(map[int64]bool))}
}

// Arm opens the gate for chatID, allowing its next photo through.
func (s *Store) Arm(chatID int64) {
	s.armed.Access(func(m map[int64]bool) { m[chatID] = true })
}

// Consume atomically checks and closes the gate for chatID. It returns true
// if the gate was open. Two concurrent photos from the same chat can't both
// pass.
func (s *Store) Consume(chatID int64) bool {
	var ok bool
	s.armed.Access(func(m map[int64]bool) {
		ok = m[chatID]
		delete(m, chatID)
	})
	return ok
}

// Armed reports whether the gate for chatID is open.
func (s *Store) Armed(chatID int64) bool {
	var ok bool
	s.armed.RAccess(func(m map[int64]bool) { ok = m[chatID] })
	return ok
}
