// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.astrophena.name/cardbot/internal/api/google/gemini"
	"go.astrophena.name/cardbot/internal/card"
	"go.astrophena.name/cardbot/internal/cli"
	"go.astrophena.name/cardbot/internal/telegram"
	"go.astrophena.name/cardbot/internal/testutil"
	"go.astrophena.name/cardbot/internal/web"

	"github.com/disintegration/imaging"
)

// Typical Telegram Bot API token, copied from docs.
const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

func TestRun(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		args      []string
		env       map[string]string
		wantErr   error
		checkFunc func(t *testing.T, e *engine)
	}{
		"prints usage with help flag": {
			args:    []string{"-h"},
			wantErr: flag.ErrHelp,
		},
		"version": {
			args:    []string{"-version"},
			wantErr: cli.ErrExitVersion,
		},
		"sets telegram token passed by env": {
			args: []string{},
			env: map[string]string{
				"TG_TOKEN": tgToken,
			},
			checkFunc: func(t *testing.T, e *engine) {
				testutil.AssertEqual(t, e.tgToken, tgToken)
			},
		},
		"rejects invalid overlay scale": {
			args:    []string{"-overlay-scale", "1.5"},
			wantErr: card.ErrInvalidLayout,
		},
		"rejects unknown overlay style": {
			args:    []string{"-overlay-style", "glitter"},
			wantErr: card.ErrInvalidLayout,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := &engine{
				httpc:         testutil.MockHTTPClient(testMux(t, nil).mux),
				recognizer:    staticRecognizer{},
				noServerStart: true,
			}
			env := &cli.Env{
				Args: tc.args,
				Getenv: func(key string) string {
					return tc.env[key]
				},
				Stdin:  strings.NewReader(""),
				Stdout: io.Discard,
				Stderr: io.Discard,
			}

			err := cli.Run(t.Context(), e, env)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("cli.Run: got error %v, want %v", err, tc.wantErr)
			}
			if tc.checkFunc != nil {
				tc.checkFunc(t, e)
			}
		})
	}
}

func TestSetWebhookRequiresHost(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil))
	if err := e.setWebhook(t.Context()); !errors.Is(err, errNoHost) {
		t.Fatalf("got %v, want errNoHost", err)
	}
}

func TestHandleRoot(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil))

	_, body := serve(t, e, "GET", "/", nil, nil)
	if !strings.Contains(body, "Telegram bot") {
		t.Errorf("GET / doesn't serve the documentation: %q", body)
	}

	code, _ := serve(t, e, "GET", "/nonexistent", nil, nil)
	testutil.AssertEqual(t, code, http.StatusNotFound)
}

func TestDebugAuth(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil))
	testutil.AssertEqual(t, e.debugAuth(nil), true)
	e.prod = true
	testutil.AssertEqual(t, e.debugAuth(nil), false)
}

// staticRecognizer is a Recognizer that always returns the same text,
// keeping Tesseract out of tests.
type staticRecognizer struct {
	text string
}

func (s staticRecognizer) Text(image.Image) (string, error) { return s.text, nil }

func testEngine(t *testing.T, m *mux) *engine {
	t.Helper()

	overlayPath := filepath.Join(t.TempDir(), "logo.png")
	b, err := card.EncodePNG(imaging.New(100, 50, overlayColor))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(overlayPath, b, 0o644); err != nil {
		t.Fatal(err)
	}

	e := &engine{
		httpc:          testutil.MockHTTPClient(m.mux),
		layout:         card.Layout{Scale: 0.14, Margin: 0.04},
		overlayPath:    overlayPath,
		recognizer:     staticRecognizer{text: "HP100"},
		requireTrigger: true,
		stderr:         io.Discard,
		tgSecret:       "test",
		tgToken:        tgToken,
	}
	if err := e.init.Get(func() error {
		return e.doInit(t.Context())
	}); err != nil {
		t.Fatal(err)
	}
	return e
}

type mux struct {
	mux *http.ServeMux

	mu            sync.Mutex
	telegramCalls []call
	sentPhoto     []byte // last photo uploaded via sendPhoto
}

type call struct {
	Method string
	Args   map[string]any
}

// calls returns all recorded calls of the given Telegram Bot API method.
func (m *mux) calls(method string) []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []call
	for _, c := range m.telegramCalls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

const (
	postTelegram = "POST api.telegram.org/{token}/{method}"
	getFile      = "GET api.telegram.org/file/{token}/{path...}"
	postGemini   = "POST generativelanguage.googleapis.com/v1beta/models/{model}"
)

func testMux(t *testing.T, overrides map[string]http.HandlerFunc) *mux {
	m := &mux{mux: http.NewServeMux()}

	m.mux.HandleFunc(postTelegram, orHandler(overrides[postTelegram], func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, tgToken, strings.TrimPrefix(r.PathValue("token"), "bot"))

		method := r.PathValue("method")
		args := make(map[string]any)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Fatal(err)
			}
			for key, vals := range r.MultipartForm.Value {
				args[key] = vals[0]
			}
			if f, _, err := r.FormFile("photo"); err == nil {
				m.mu.Lock()
				m.sentPhoto = read(t, f)
				m.mu.Unlock()
				f.Close()
			}
		} else if b := read(t, r.Body); len(b) > 0 {
			args = testutil.UnmarshalJSON[map[string]any](t, b)
		}

		m.mu.Lock()
		m.telegramCalls = append(m.telegramCalls, call{Method: method, Args: args})
		m.mu.Unlock()

		switch method {
		case "getMe":
			web.RespondJSON(w, map[string]any{
				"ok": true,
				"result": telegram.User{
					ID:       123456789,
					Username: "cardbot_test_bot",
					IsBot:    true,
				},
			})
		case "getFile":
			web.RespondJSON(w, map[string]any{
				"ok":     true,
				"result": map[string]string{"file_path": "photos/file_1.jpg"},
			})
		case "sendMessage", "sendPhoto":
			web.RespondJSON(w, map[string]any{"ok": true, "result": telegram.Message{ID: 1}})
		default:
			web.RespondJSON(w, map[string]any{"ok": true, "result": true})
		}
	}))

	m.mux.HandleFunc(getFile, orHandler(overrides[getFile], func(w http.ResponseWriter, r *http.Request) {
		w.Write(testPhotoJPEG(t))
	}))

	m.mux.HandleFunc(postGemini, orHandler(overrides[postGemini], func(w http.ResponseWriter, r *http.Request) {
		generated, err := card.EncodePNG(imaging.New(1024, 1536, cardColor))
		if err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(&gemini.GenerateContentResponse{
			Candidates: []*gemini.Candidate{
				{
					Content: &gemini.Content{
						Parts: []*gemini.Part{
							{InlineData: &gemini.InlineData{
								MimeType: "image/png",
								Data:     base64.StdEncoding.EncodeToString(generated),
							}},
						},
					},
				},
			},
		})
	}))

	for pat, h := range overrides {
		if pat == postTelegram || pat == getFile || pat == postGemini {
			continue
		}
		m.mux.HandleFunc(pat, h)
	}

	return m
}

func orHandler(hh ...http.HandlerFunc) http.HandlerFunc {
	for _, h := range hh {
		if h != nil {
			return h
		}
	}
	return nil
}

func read(t *testing.T, r io.Reader) []byte {
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func testPhotoJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(512, 512, photoColor), imaging.JPEG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
