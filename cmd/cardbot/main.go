// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"flag"
	"image"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.astrophena.name/cardbot/internal/api/google/gemini"
	"go.astrophena.name/cardbot/internal/card"
	"go.astrophena.name/cardbot/internal/cli"
	"go.astrophena.name/cardbot/internal/gate"
	"go.astrophena.name/cardbot/internal/httplogger"
	"go.astrophena.name/cardbot/internal/logger"
	"go.astrophena.name/cardbot/internal/request"
	"go.astrophena.name/cardbot/internal/telegram"
	"go.astrophena.name/cardbot/internal/util/syncx"
	"go.astrophena.name/cardbot/internal/version"
	"go.astrophena.name/cardbot/internal/web"
)

func main() { cli.Main(new(engine)) }

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&e.prod, "prod", false, "Run in production mode.")
	fs.StringVar(&e.addr, "addr", "localhost:3000", "Listen on `host:port`.")
	fs.StringVar(&e.overlayPath, "overlay", "", "`path` to the overlay asset (an image with transparency).")
	fs.Float64Var(&e.layout.Scale, "overlay-scale", 0.18, "Overlay width as a `fraction` of the card width.")
	fs.Float64Var(&e.layout.Margin, "overlay-margin", 0.04, "Overlay inset from the bottom-right corner as a `fraction` of the card dimensions.")
	fs.Float64Var(&e.layout.XOffset, "overlay-x-offset", 0, "Horizontal overlay adjustment as a `fraction` of the card width.")
	fs.Float64Var(&e.layout.YOffset, "overlay-y-offset", 0, "Vertical overlay adjustment as a `fraction` of the card height.")
	fs.StringVar(&e.overlayStyle, "overlay-style", "plain", "Overlay `style`: plain, stamp or foil.")
	fs.BoolVar(&e.requireTrigger, "require-trigger", true, "Require /generate before accepting a photo.")
	fs.BoolVar(&e.debugHTTP, "debug-http", false, "Log outgoing HTTP requests.")
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	// Load configuration from environment variables.
	e.geminiKey = cmp.Or(e.geminiKey, env.Getenv("GEMINI_KEY"))
	e.host = cmp.Or(e.host, env.Getenv("HOST"))
	e.onRender = env.Getenv("RENDER") == "true"
	e.overlayPath = cmp.Or(e.overlayPath, env.Getenv("OVERLAY"))
	e.tgSecret = cmp.Or(e.tgSecret, env.Getenv("TG_SECRET"))
	e.tgToken = cmp.Or(e.tgToken, env.Getenv("TG_TOKEN"))

	e.stderr = env.Stderr

	// Initialize internal state.
	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	// If running on Render, look up the port to listen on and start a
	// goroutine that prevents Cardbot from sleeping.
	if e.onRender {
		e.logf("Running on Render: enabling production mode and starting self-ping goroutine.")
		e.prod = true
		// https://docs.render.com/environment-variables#all-runtimes-1
		if port := env.Getenv("PORT"); port != "" {
			e.addr = ":" + port
		}
		go e.selfPing(ctx, env, selfPingInterval)
	}

	// If running in production mode, set the webhook in Telegram Bot API.
	if e.prod {
		if err := e.setWebhook(ctx); err != nil {
			return err
		}
		e.logf("Running in production mode.")
	} else {
		e.logf("Running in development mode.")
	}

	return web.ListenAndServe(ctx, &web.ListenAndServeConfig{
		Addr:      e.addr,
		Mux:       e.mux,
		Logf:      e.logf,
		DebugAuth: e.debugAuth,
		Ready:     e.ready,
	})
}

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	auditor    *card.Auditor
	gates      *gate.Store
	geminic    *gemini.Client
	logStream  logger.Streamer
	logf       logger.Logf
	me         telegram.User
	mux        *http.ServeMux
	overlay    image.Image
	recognizer card.Recognizer
	scrubber   *strings.Replacer
	synth      *card.Synthesizer
	tgc        *telegram.Client

	// configuration, read-only after initialization
	addr           string
	debugHTTP      bool
	geminiKey      string
	host           string
	httpc          *http.Client
	layout         card.Layout
	onRender       bool
	overlayPath    string
	overlayStyle   string
	prod           bool
	requireTrigger bool
	stderr         io.Writer
	tgSecret       string
	tgToken        string

	// for tests
	noServerStart bool
	ready         func() // see web.ListenAndServeConfig.Ready
}

const selfPingInterval = 10 * time.Minute

func (e *engine) doInit(ctx context.Context) error {
	if e.httpc == nil {
		e.httpc = &http.Client{
			// Image generation takes much longer than a typical API call.
			Timeout: 5 * time.Minute,
		}
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	const logLineLimit = 300
	e.logStream = logger.NewStreamer(logLineLimit)
	e.logf = log.New(io.MultiWriter(e.stderr, &timestampWriter{e.logStream}), "", 0).Printf

	if e.debugHTTP {
		transport := e.httpc.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		e.httpc.Transport = httplogger.New(transport, httplogger.Logf(e.logf))
	}

	var scrubPairs []string
	for _, val := range []string{
		e.tgSecret,
		e.tgToken,
		e.geminiKey,
	} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	if len(scrubPairs) > 0 {
		e.scrubber = strings.NewReplacer(scrubPairs...)
	}

	e.geminic = &gemini.Client{
		APIKey:     e.geminiKey,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
	}
	e.tgc = &telegram.Client{
		Token:      e.tgToken,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
	}

	e.layout.Style = card.Style(e.overlayStyle)
	// Fail fast on bad compositing parameters instead of surfacing them on
	// the first photo.
	if err := e.layout.Validate(); err != nil {
		return err
	}
	if e.overlayPath != "" {
		overlay, err := card.LoadOverlay(e.overlayPath)
		if err != nil {
			return err
		}
		e.overlay = overlay
	}

	e.synth = &card.Synthesizer{Gemini: e.geminic}
	if e.recognizer == nil {
		e.recognizer = card.TesseractRecognizer{}
	}
	e.auditor = &card.Auditor{
		Recognizer: e.recognizer,
		Logf:       e.logf,
	}
	e.gates = gate.New()

	me, err := e.tgc.Me(ctx)
	if err != nil {
		return err
	}
	e.me = me

	e.initRoutes()

	return nil
}

var errNoHost = errors.New("host hasn't set; pass it with HOST environment variable")

func (e *engine) setWebhook(ctx context.Context) error {
	if e.host == "" {
		return errNoHost
	}
	u := &url.URL{
		Scheme: "https",
		Host:   e.host,
		Path:   "/telegram",
	}
	return e.tgc.SetWebhook(ctx, u.String(), e.tgSecret)
}

// selfPing continuously pings Cardbot to prevent its Render app from sleeping.
func (e *engine) selfPing(ctx context.Context, env *cli.Env, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			url := env.Getenv("RENDER_EXTERNAL_URL")
			if url == "" {
				e.logf("selfPing: RENDER_EXTERNAL_URL is not set; are you really on Render?")
				return
			}
			health, err := request.Make[web.HealthResponse](ctx, request.Params{
				Method: http.MethodGet,
				URL:    url + "/health",
				Headers: map[string]string{
					"User-Agent": version.UserAgent(),
				},
				HTTPClient: e.httpc,
				Scrubber:   e.scrubber,
			})
			if err != nil {
				e.logf("selfPing: %v", err)
			}
			if !health.OK {
				e.logf("selfPing: unhealthy: %+v", health)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *engine) debugAuth(r *http.Request) bool { return !e.prod }

// timestampWriter is an io.Writer that prefixes each line with the current date and time.
type timestampWriter struct {
	w io.Writer
}

func (tw *timestampWriter) Write(p []byte) (n int, err error) {
	lines := bytes.SplitAfter(p, []byte{'\n'})

	for _, line := range lines {
		if len(line) > 0 {
			timestamp := time.Now().Format(time.DateTime + "\t")
			_, err := tw.w.Write([]byte(timestamp))
			if err != nil {
				return n, err
			}
			nn, err := tw.w.Write(line)
			n += nn
			if err != nil {
				return n, err
			}
		}
	}

	return n, nil
}
