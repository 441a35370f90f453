package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
options:
  music: [calm, upbeat]
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Subtitles.WindowSec != 3 {
		t.Errorf("window default: got %v", cfg.Subtitles.WindowSec)
	}
	if cfg.Subtitles.MaxChunkBytes != 10*1024*1024-1000 {
		t.Errorf("chunk default: got %d", cfg.Subtitles.MaxChunkBytes)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.Channels != 2 {
		t.Errorf("audio defaults: %+v", cfg.Audio)
	}
	if cfg.SignedURLExpiry() != 10*time.Minute {
		t.Errorf("signed url expiry: %v", cfg.SignedURLExpiry())
	}
	if cfg.Script.Temperature == nil || *cfg.Script.Temperature != 0.7 {
		t.Errorf("temperature default: got %v", cfg.Script.Temperature)
	}
	p := cfg.CallPolicy()
	if p.Attempts != 3 || p.Timeout != time.Minute || p.Backoff != 2*time.Second {
		t.Errorf("call policy: %+v", p)
	}
}

func TestParseKeepsExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
subtitles:
  window_sec: 2.5
workers: 1
media:
  preferred_quality: sd
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Subtitles.WindowSec != 2.5 || cfg.Workers != 1 || cfg.Media.PreferredQuality != "sd" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
}

func TestParseKeepsZeroTemperature(t *testing.T) {
	cfg, err := Parse([]byte(minimal + "script: {temperature: 0}"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Script.Temperature == nil || *cfg.Script.Temperature != 0 {
		t.Errorf("explicit zero temperature overwritten: %v", cfg.Script.Temperature)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no music":      `options: {music: []}`,
		"bad backend":   minimal + "storage: {backend: s3}",
		"gcs no bucket": minimal + "storage: {backend: gcs}",
		"bad provider":  minimal + "script: {provider: llama}",
		"neg window":    minimal + "subtitles: {window_sec: -1}",
		"neg silence":   minimal + "audio: {empty_scene_sec: -1}",
		"tiny silence":  minimal + "audio: {empty_scene_sec: 0.00001}",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		} else if !strings.HasPrefix(err.Error(), "config:") {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}

func TestLoadReadsSecretsFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PEXELS_API_KEY", "px-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Secrets.PexelsAPIKey != "px-key" {
		t.Errorf("expected pexels key from env, got %q", cfg.Secrets.PexelsAPIKey)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.yaml"))
	if err != nil {
		t.Fatalf("sample config.yaml does not load: %v", err)
	}
	if cfg.Storage.Backend != "local" || len(cfg.Options.Music) == 0 {
		t.Errorf("unexpected sample config %+v", cfg.Storage)
	}
	if cfg.Subtitles.MaxChunkBytes != 10*1024*1024-1000 {
		t.Errorf("max_chunk_bytes = %d", cfg.Subtitles.MaxChunkBytes)
	}
}
