// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package card

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.astrophena.name/cardbot/internal/api/google/gemini"
	"go.astrophena.name/cardbot/internal/testutil"
)

func synthClient(t *testing.T, handler http.HandlerFunc) *gemini.Client {
	mux := http.NewServeMux()
	mux.HandleFunc("POST generativelanguage.googleapis.com/v1beta/models/{model}", handler)
	return &gemini.Client{
		APIKey:     "test",
		HTTPClient: testutil.MockHTTPClient(mux),
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	photo, err := EncodePNG(newCard(512, 512))
	if err != nil {
		t.Fatal(err)
	}
	generated, err := EncodePNG(newCard(1024, 1536))
	if err != nil {
		t.Fatal(err)
	}

	var gotBody []byte
	s := &Synthesizer{
		Gemini: synthClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotBody, err = io.ReadAll(r.Body)
			if err != nil {
				t.Fatal(err)
			}
			json.NewEncoder(w).Encode(&gemini.GenerateContentResponse{
				Candidates: []*gemini.Candidate{
					{
						Content: &gemini.Content{
							Parts: []*gemini.Part{
								{Text: "Here is your card."},
								{InlineData: &gemini.InlineData{
									MimeType: "image/png",
									Data:     base64.StdEncoding.EncodeToString(generated),
								}},
							},
						},
					},
				},
			})
		}),
	}

	img, err := s.Synthesize(t.Context(), photo)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, img.Bounds().Dx(), 1024)
	testutil.AssertEqual(t, img.Bounds().Dy(), 1536)

	var params gemini.GenerateContentParams
	if err := json.Unmarshal(gotBody, &params); err != nil {
		t.Fatal(err)
	}
	if len(params.Contents) != 1 || len(params.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected request shape: %s", gotBody)
	}
	if !strings.Contains(params.Contents[0].Parts[0].Text, "trading card") {
		t.Error("request doesn't carry the design brief")
	}
	inline := params.Contents[0].Parts[1].InlineData
	if inline == nil {
		t.Fatal("request doesn't carry the photo")
	}
	testutil.AssertEqual(t, inline.MimeType, "image/png")
	testutil.AssertEqual(t, params.GenerationConfig.ResponseModalities, []string{"TEXT", "IMAGE"})
	testutil.AssertEqual(t, params.GenerationConfig.ImageConfig.AspectRatio, "3:4")
}

func TestSynthesizeUndecodablePhoto(t *testing.T) {
	t.Parallel()

	s := &Synthesizer{Gemini: &gemini.Client{APIKey: "test"}}
	if _, err := s.Synthesize(t.Context(), []byte("not an image")); !errors.Is(err, ErrDecodePhoto) {
		t.Fatalf("got %v, want ErrDecodePhoto", err)
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	t.Parallel()

	photo, err := EncodePNG(newCard(16, 16))
	if err != nil {
		t.Fatal(err)
	}

	s := &Synthesizer{
		Gemini: synthClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}),
	}
	if _, err := s.Synthesize(t.Context(), photo); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("got %v, want ErrSynthesis", err)
	}
}

func TestSynthesizeNoImageInResponse(t *testing.T) {
	t.Parallel()

	photo, err := EncodePNG(newCard(16, 16))
	if err != nil {
		t.Fatal(err)
	}

	s := &Synthesizer{
		Gemini: synthClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(&gemini.GenerateContentResponse{
				Candidates: []*gemini.Candidate{
					{Content: &gemini.Content{Parts: []*gemini.Part{{Text: "I can't do that."}}}},
				},
			})
		}),
	}
	if _, err := s.Synthesize(t.Context(), photo); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("got %v, want ErrSynthesis", err)
	}
}

func TestSynthesizeGarbagePayload(t *testing.T) {
	t.Parallel()

	photo, err := EncodePNG(newCard(16, 16))
	if err != nil {
		t.Fatal(err)
	}

	s := &Synthesizer{
		Gemini: synthClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(&gemini.GenerateContentResponse{
				Candidates: []*gemini.Candidate{
					{
						Content: &gemini.Content{
							Parts: []*gemini.Part{
								{InlineData: &gemini.InlineData{
									MimeType: "image/png",
									Data:     base64.StdEncoding.EncodeToString([]byte("not an image")),
								}},
							},
						},
					},
				},
			})
		}),
	}
	if _, err := s.Synthesize(t.Context(), photo); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("got %v, want ErrSynthesis", err)
	}
}
