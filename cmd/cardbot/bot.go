// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.astrophena.name/cardbot/internal/card"
	"go.astrophena.name/cardbot/internal/telegram"
	"go.astrophena.name/cardbot/internal/web"
)

const (
	helpMessage    = "Send /generate and then a photo, and I'll turn it into a trading card."
	triggerMessage = "Send me a photo and I'll make a card out of it."
	gateMessage    = "Send /generate first, then a photo."
	decodeMessage  = "I can't read that image. Try sending a different one."
	genericMessage = "Sorry, something went wrong. Try again later."
	cardCaption    = "Here's your card!"

	// callbackAgain is the callback data of the "Create another" button.
	callbackAgain = "again"
)

func (e *engine) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != e.tgSecret {
		web.RespondError(e.logf, w, web.ErrNotFound)
		return
	}

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		web.RespondError(e.logf, w, web.ErrBadRequest)
		return
	}

	switch {
	case update.CallbackQuery != nil:
		e.handleCallback(r.Context(), update.CallbackQuery)
	case update.Message != nil && len(update.Message.Photo) > 0:
		e.handlePhoto(r.Context(), update.Message)
	case update.Message != nil:
		e.handleMessage(r.Context(), update.Message)
	}

	// Always acknowledge the update, otherwise Telegram will keep retrying
	// it.
	jsonOK(w)
}

func jsonOK(w http.ResponseWriter) {
	web.RespondJSON(w, map[string]bool{"ok": true})
}

func (e *engine) handleMessage(ctx context.Context, msg *telegram.Message) {
	cmd, _, _ := strings.Cut(msg.Text, " ")
	cmd = strings.TrimSuffix(cmd, "@"+e.me.Username)

	switch cmd {
	case "/generate":
		e.gates.Arm(msg.Chat.ID)
		e.reply(ctx, msg.Chat.ID, triggerMessage)
	default:
		// /start, /help and everything else that isn't a photo.
		e.reply(ctx, msg.Chat.ID, helpMessage)
	}
}

func (e *engine) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if err := e.tgc.AnswerCallbackQuery(ctx, q.ID); err != nil {
		e.logf("Answering callback query %q failed: %v", q.ID, err)
	}
	if q.Data != callbackAgain || q.Message == nil {
		return
	}
	e.gates.Arm(q.Message.Chat.ID)
	e.reply(ctx, q.Message.Chat.ID, triggerMessage)
}

func (e *engine) handlePhoto(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID

	if e.requireTrigger && !e.gates.Consume(chatID) {
		e.reply(ctx, chatID, gateMessage)
		return
	}

	err := e.generateCard(ctx, msg)
	if err == nil {
		return
	}
	e.logf("Generating a card for chat %d failed: %v", chatID, err)

	// The user isn't locked out by a transient failure: these errors re-arm
	// the gate so the same trigger admits a retry.
	if e.requireTrigger && (errors.Is(err, card.ErrSynthesis) || errors.Is(err, card.ErrDecodePhoto)) {
		e.gates.Arm(chatID)
	}

	if errors.Is(err, card.ErrDecodePhoto) {
		e.reply(ctx, chatID, decodeMessage)
		return
	}
	e.reply(ctx, chatID, genericMessage)
}

func (e *engine) generateCard(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID

	if err := e.tgc.SendChatAction(ctx, chatID, "typing"); err != nil {
		e.logf("Sending chat action to chat %d failed: %v", chatID, err)
	}

	// Telegram orders photo sizes from smallest to largest.
	photo := msg.Photo[len(msg.Photo)-1]
	b, err := e.tgc.DownloadFile(ctx, photo.FileID)
	if err != nil {
		return err
	}

	generated, err := e.synth.Synthesize(ctx, b)
	if err != nil {
		return err
	}

	e.auditor.Audit(generated)

	final := generated
	if e.overlay != nil {
		composed, err := card.Compose(generated, e.overlay, e.layout)
		if err != nil {
			return err
		}
		final = composed
	}

	png, err := card.EncodePNG(final)
	if err != nil {
		return err
	}

	if err := e.tgc.SendChatAction(ctx, chatID, "upload_photo"); err != nil {
		e.logf("Sending chat action to chat %d failed: %v", chatID, err)
	}

	_, err = e.tgc.SendPhoto(ctx, telegram.SendPhotoParams{
		ChatID:  chatID,
		Caption: cardCaption,
		Photo:   png,
		ReplyMarkup: &telegram.ReplyMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{{Text: "Create another", CallbackData: callbackAgain}},
			},
		},
	})
	return err
}

func (e *engine) reply(ctx context.Context, chatID int64, text string) {
	if _, err := e.tgc.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		e.logf("Replying to chat %d failed: %v", chatID, err)
	}
}
