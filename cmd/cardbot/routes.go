// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"fmt"
	"net/http"

	"go.astrophena.name/cardbot/internal/cli"
	"go.astrophena.name/cardbot/internal/util/syncx"
	"go.astrophena.name/cardbot/internal/version"
	"go.astrophena.name/cardbot/internal/web"

	"github.com/arl/statsviz"
	"rsc.io/markdown"
)

var docPage syncx.Lazy[string]

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("/", e.handleRoot)
	e.mux.HandleFunc("POST /telegram", e.handleTelegramWebhook)

	// Health check.
	web.Health(e.mux)

	// Debug routes.
	e.mux.Handle("GET /debug/log", e.logStream)
	// Runtime metrics.
	statsviz.Register(e.mux)
}

func (e *engine) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		web.RespondError(e.logf, w, web.ErrNotFound)
		return
	}

	page := docPage.Get(func() string {
		parser := &markdown.Parser{
			AutoLinkText:       true,
			AutoLinkAssumeHTTP: true,
			SmartDot:           true,
			SmartDash:          true,
			SmartQuote:         true,
		}
		doc := parser.Parse(cli.DocComment())
		return fmt.Sprintf(docTemplate, version.CmdName(), markdown.ToHTML(doc))
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

const docTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body>
%s
</body>
</html>
`
