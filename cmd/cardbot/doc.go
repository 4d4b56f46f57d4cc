// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Cardbot is a Telegram bot that turns photos into trading cards.

Cardbot receives photos through a Telegram webhook, sends them to the Gemini
API to generate a stylized trading card, stamps a branding overlay onto the
result and replies with the final image. An advisory OCR pass checks that the
generated card carries an HP marker and doesn't repeat its flavor text; its
findings are logged, never enforced.

# Usage

	$ cardbot [flags...]

Send /generate to the bot, then a photo. The reply carries a "Create another"
button that lets you submit the next photo without typing the command again.

# Environment Variables

The following environment variables can be used to configure Cardbot:

  - GEMINI_KEY: The Gemini API key.
  - HOST: The bot domain used for setting up the webhook.
  - OVERLAY: Path to the overlay asset (an image with transparency).
  - RENDER: Set to "true" if running on Render.
  - TG_SECRET: The secret token used to validate Telegram Bot API updates.
  - TG_TOKEN: The Telegram Bot API token.

# Debug Interface

Cardbot provides a debug interface with the following endpoints:

  - /debug/log: Displays the last 300 lines of logs, streamed automatically.
  - /debug/statsviz: Displays runtime metrics.

In production mode the debug endpoints respond with 404.

[Render]: https://render.com
*/
package main

import (
	_ "embed"

	"go.astrophena.name/cardbot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
