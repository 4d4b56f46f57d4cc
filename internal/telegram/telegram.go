// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements a minimal client for the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.astrophena.name/cardbot/internal/request"
	"go.astrophena.name/cardbot/internal/version"
)

const apiURL = "https://api.telegram.org"

// Client makes calls to the Telegram Bot API on behalf of a single bot.
type Client struct {
	// Token is the bot token used for authentication.
	Token string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// Update represents an incoming update from the Telegram Bot API.
// See https://core.telegram.org/bots/api#update.
type Update struct {
	ID            int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message represents a message.
// See https://core.telegram.org/bots/api#message.
type Message struct {
	ID      int64       `json:"message_id"`
	From    *User       `json:"from,omitempty"`
	Chat    Chat        `json:"chat"`
	Text    string      `json:"text,omitempty"`
	Caption string      `json:"caption,omitempty"`
	Photo   []PhotoSize `json:"photo,omitempty"`
}

// Chat represents a chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User represents a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// PhotoSize represents one size of a photo.
// See https://core.telegram.org/bots/api#photosize.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// CallbackQuery represents an incoming callback query from an inline keyboard
// button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ReplyMarkup represents an inline keyboard attached to a message.
type ReplyMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// apiResponse is the envelope in which the Telegram Bot API wraps every
// response. See https://core.telegram.org/bots/api#making-requests.
type apiResponse[Result any] struct {
	OK          bool   `json:"ok"`
	Result      Result `json:"result"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// Call invokes a Telegram Bot API method with the provided arguments and
// returns the unwrapped result.
func Call[Result any](ctx context.Context, c *Client, method string, args any) (Result, error) {
	resp, err := request.Make[apiResponse[Result]](ctx, request.Params{
		Method: http.MethodPost,
		URL:    apiURL + "/bot" + c.Token + "/" + method,
		Body:   args,
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		var zero Result
		return zero, err
	}
	if !resp.OK {
		var zero Result
		return zero, fmt.Errorf("%s: telegram error %d: %s", method, resp.ErrorCode, resp.Description)
	}
	return resp.Result, nil
}

// Me returns basic information about the bot.
// See https://core.telegram.org/bots/api#getme.
func (c *Client) Me(ctx context.Context) (User, error) {
	return Call[User](ctx, c, "getMe", nil)
}

// SetWebhook points the Telegram webhook for this bot to url, protected by
// the secret token.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	_, err := Call[bool](ctx, c, "setWebhook", map[string]string{
		"url":          url,
		"secret_token": secret,
	})
	return err
}

// SendMessageParams are the arguments of the sendMessage method.
type SendMessageParams struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *ReplyMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (Message, error) {
	return Call[Message](ctx, c, "sendMessage", p)
}

// SendChatAction tells the user that something is happening on the bot's
// side, for example "typing" or "upload_photo".
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := Call[bool](ctx, c, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
	return err
}

// AnswerCallbackQuery acknowledges a callback query so the client stops
// displaying a progress indicator.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	_, err := Call[bool](ctx, c, "answerCallbackQuery", map[string]string{
		"callback_query_id": id,
	})
	return err
}

// SendPhotoParams are the arguments of the sendPhoto method.
type SendPhotoParams struct {
	ChatID      int64
	Caption     string
	Photo       []byte // encoded image bytes, uploaded as a file
	ReplyMarkup *ReplyMarkup
}

// SendPhoto uploads a photo with multipart/form-data and sends it.
// See https://core.telegram.org/bots/api#sendphoto.
func (c *Client) SendPhoto(ctx context.Context, p SendPhotoParams) (Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("chat_id", strconv.FormatInt(p.ChatID, 10)); err != nil {
		return Message{}, err
	}
	if p.Caption != "" {
		if err := mw.WriteField("caption", p.Caption); err != nil {
			return Message{}, err
		}
	}
	if p.ReplyMarkup != nil {
		markup, err := json.Marshal(p.ReplyMarkup)
		if err != nil {
			return Message{}, err
		}
		if err := mw.WriteField("reply_markup", string(markup)); err != nil {
			return Message{}, err
		}
	}
	fw, err := mw.CreateFormFile("photo", "card.png")
	if err != nil {
		return Message{}, err
	}
	if _, err := fw.Write(p.Photo); err != nil {
		return Message{}, err
	}
	if err := mw.Close(); err != nil {
		return Message{}, err
	}

	resp, err := request.Make[apiResponse[Message]](ctx, request.Params{
		Method: http.MethodPost,
		URL:    apiURL + "/bot" + c.Token + "/sendPhoto",
		Body:   buf.Bytes(),
		Headers: map[string]string{
			"Content-Type": mw.FormDataContentType(),
			"User-Agent":   version.UserAgent(),
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return Message{}, err
	}
	if !resp.OK {
		return Message{}, fmt.Errorf("sendPhoto: telegram error %d: %s", resp.ErrorCode, resp.Description)
	}
	return resp.Result, nil
}

// DownloadFile fetches the contents of a file stored on Telegram servers by
// its file ID.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	type fileInfo struct {
		FilePath string `json:"file_path"`
	}

	fi, err := Call[fileInfo](ctx, c, "getFile", map[string]string{
		"file_id": fileID,
	})
	if err != nil {
		return nil, err
	}

	b, err := request.Make[request.Bytes](ctx, request.Params{
		Method: http.MethodGet,
		URL:    apiURL + "/file/bot" + c.Token + "/" + fi.FilePath,
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
