package script

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shortform-studio/internal/config"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/types"
)

type fakeGenerator struct {
	reply      string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
	described  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	f.lastSystem, f.lastPrompt = system, prompt
	return f.reply, f.err
}

func (f *fakeGenerator) DescribeImage(ctx context.Context, mimeType string, data []byte, prompt string) (string, error) {
	f.described = append(f.described, mimeType)
	return "a photo of " + string(data), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("options: {music: [calm]}\ncalls: {attempts: 2, backoff_sec: 0.001}\n"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

var brief = types.Brief{
	Title: "Tides", Description: "How tides work", Template: "educational",
	Duration: "30s", Orientation: "portrait",
}

func TestWriterRunAttachesBriefLayout(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"scenes\":[{\"type\":\"stock_video\",\"query\":\"moon\",\"script\":\"The moon pulls.\"}],\"music\":\"calm\"}\n```"}
	w := NewWriter(gen, testConfig(t), nil)

	doc, err := w.Run(context.Background(), brief, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if doc.Resolution != (types.Resolution{Width: 720, Height: 1280}) || doc.Orientation != "portrait" {
		t.Errorf("layout not attached: %+v", doc)
	}
	if !strings.Contains(gen.lastSystem, `"stock_video" | "stock_photo"`) {
		t.Errorf("expected stock profile, got system prompt:\n%s", gen.lastSystem)
	}
	if !strings.Contains(gen.lastPrompt, "title: Tides") {
		t.Errorf("brief missing from prompt:\n%s", gen.lastPrompt)
	}
}

func TestWriterRunDoesNotRetryMalformedOutput(t *testing.T) {
	gen := &fakeGenerator{reply: "no json here"}
	w := NewWriter(gen, testConfig(t), nil)

	_, err := w.Run(context.Background(), brief, nil)
	if !errors.Is(err, pipeerr.ErrMalformedScript) {
		t.Fatalf("expected ErrMalformedScript, got %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("malformed output must not be retried, got %d calls", gen.calls)
	}
}

func TestWriterRunRetriesModelFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("503")}
	w := NewWriter(gen, testConfig(t), nil)

	_, err := w.Run(context.Background(), brief, nil)
	if !errors.Is(err, pipeerr.ErrScriptGeneration) {
		t.Fatalf("expected ErrScriptGeneration, got %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", gen.calls)
	}
}

func TestWriterRunRejectsUnknownUserMedia(t *testing.T) {
	gen := &fakeGenerator{reply: `{"scenes":[{"type":"user_photo","media_path":"ghost.png"}],"music":"calm"}`}
	w := NewWriter(gen, testConfig(t), nil)

	media := []MediaDescriptor{{Source: "real.png", Form: types.FormPhoto, Desc: "a cat"}}
	_, err := w.Run(context.Background(), brief, media)
	if !errors.Is(err, pipeerr.ErrMalformedScript) {
		t.Fatalf("expected ErrMalformedScript, got %v", err)
	}
	if !strings.Contains(gen.lastSystem, "user's own media") {
		t.Errorf("expected media profile")
	}
}

func TestWriterDescribe(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cat.png"), []byte("cat"), 0644); err != nil {
		t.Fatal(err)
	}
	gen := &fakeGenerator{reply: "a clip of waves"}
	w := NewWriter(gen, testConfig(t), nil)

	got := w.Describe(context.Background(), dir, []string{"cat.png", "waves.mp4", "notes.txt"})
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors, got %+v", got)
	}
	if got[0].Desc != "a photo of cat" || got[0].Form != types.FormPhoto {
		t.Errorf("unexpected photo descriptor: %+v", got[0])
	}
	if got[1].Desc != "a clip of waves" || got[1].Form != types.FormVideo {
		t.Errorf("unexpected video descriptor: %+v", got[1])
	}
	if len(gen.described) != 1 || gen.described[0] != "image/png" {
		t.Errorf("expected one inline image, got %v", gen.described)
	}
}

func TestSystemPromptProfileOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stock.txt"), []byte("CUSTOM STOCK PROMPT"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := SystemPrompt(ProfileStock, dir, config.OptionsConfig{Music: []string{"calm"}})
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if !strings.HasPrefix(got, "CUSTOM STOCK PROMPT") || !strings.Contains(got, `"music":["calm"]`) {
		t.Errorf("unexpected prompt: %s", got)
	}
}

func TestProfileFor(t *testing.T) {
	cases := []struct {
		media, stock bool
		want         Profile
	}{
		{false, false, ProfileStock},
		{false, true, ProfileStock},
		{true, false, ProfileMedia},
		{true, true, ProfileMediaStock},
	}
	for _, tc := range cases {
		if got := ProfileFor(tc.media, tc.stock); got != tc.want {
			t.Errorf("ProfileFor(%v,%v) = %s, want %s", tc.media, tc.stock, got, tc.want)
		}
	}
}

func TestGroqGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gk" {
			t.Errorf("missing bearer token")
		}
		var req groqRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"scenes\":[]}"}}]}`))
	}))
	defer srv.Close()

	g, err := NewGroqGenerator(srv.URL, "gk", "llama", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != `{"scenes":[]}` {
		t.Errorf("unexpected content %q", got)
	}
}

func TestGroqGeneratorClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	g, _ := NewGroqGenerator(srv.URL, "gk", "llama", 0.5)
	cfg := testConfig(t)
	cfg.Calls.Attempts = 3
	w := NewWriter(g, cfg, nil)

	_, err := w.Run(context.Background(), brief, nil)
	if !errors.Is(err, pipeerr.ErrScriptGeneration) || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeminiGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-1.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "gemkey" && r.URL.Query().Get("key") != "gemkey" {
			t.Errorf("api key not sent")
		}
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				Temperature *float64 `json:"temperature"`
			} `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Contents) != 1 || len(body.Contents[0].Parts) != 1 || body.Contents[0].Parts[0].Text != "prompt" {
			t.Errorf("unexpected contents %+v", body.Contents)
		}
		if body.GenerationConfig.Temperature == nil || *body.GenerationConfig.Temperature != 0 {
			t.Errorf("temperature not sent as 0: %v", body.GenerationConfig.Temperature)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGeminiGenerator(context.Background(), "gemkey", "gemini-1.5-flash", 0, srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.Generate(context.Background(), "sys", "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("unexpected text %q", got)
	}
}
