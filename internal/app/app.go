// Package app wires config into a ready pipeline for the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"shortform-studio/internal/audio"
	"shortform-studio/internal/cleanup"
	"shortform-studio/internal/config"
	"shortform-studio/internal/media"
	"shortform-studio/internal/pipeline"
	"shortform-studio/internal/publish"
	"shortform-studio/internal/render"
	"shortform-studio/internal/script"
	"shortform-studio/internal/storage"
	"shortform-studio/internal/subtitles"
)

// App owns every long-lived collaborator. Close releases them.
type App struct {
	Pipeline *pipeline.Pipeline
	Ledger   *storage.Ledger
	// FilesDir is set for the local storage backend so the server can serve it.
	FilesDir string

	closers []func() error
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{}
	if err := cleanup.EnsureDir(cfg.Paths.WorkDir); err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	gen, err := generator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	writer := script.NewWriter(gen, cfg, log)

	store, err := a.store(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var search media.Searcher
	if px, err := media.NewPexels(cfg.Media.PexelsVideoURL, cfg.Media.PexelsPhotoURL, cfg.Secrets.PexelsAPIKey, cfg.Media.PerPage); err == nil {
		search = px
	} else {
		log.Warn("stock search disabled", zap.Error(err))
	}
	downloader := media.NewHTTPDownloader(5 * time.Minute)
	resolver := media.NewResolver(search, downloader, store, media.Options{
		PreferredQuality: cfg.Media.PreferredQuality,
		SignedURLExpiry:  cfg.SignedURLExpiry(),
		Policy:           cfg.CallPolicy(),
	}, log)

	google := googleOptions(cfg)
	tts, err := audio.NewGoogleSpeech(ctx, cfg.Audio.Voice, cfg.Audio.LanguageCode, cfg.Audio.SampleRate, google...)
	if err != nil {
		a.Close()
		return nil, err
	}
	narrator := audio.NewSynthesizer(tts, audio.Options{
		SampleRate:    cfg.Audio.SampleRate,
		EmptySceneSec: cfg.Audio.EmptySceneSec,
		Policy:        cfg.CallPolicy(),
	}, log)

	speechOpts := google
	if cfg.Secrets.SpeechAPIKey != "" {
		speechOpts = []option.ClientOption{option.WithAPIKey(cfg.Secrets.SpeechAPIKey)}
	}
	rec, err := subtitles.NewGoogleRecognizer(ctx, cfg.Subtitles.LanguageCode, speechOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	transcriber := subtitles.NewTranscriber(rec, subtitles.TranscriberOptions{
		MaxChunkBytes: cfg.Subtitles.MaxChunkBytes,
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		Renormalize:   cfg.Subtitles.RenormalizeChunkOffsets,
		Policy:        cfg.CallPolicy(),
	}, log)

	renderer := render.New(render.Options{
		FFmpeg:       cfg.Render.FFmpeg,
		FFprobe:      cfg.Render.FFprobe,
		FPS:          cfg.Render.FPS,
		MusicDir:     cfg.Render.MusicDir,
		FontsDir:     cfg.Render.FontsDir,
		MusicVolume:  cfg.Render.MusicVolume,
		OverlaySize:  cfg.Render.OverlaySize,
		SubtitleFont: cfg.Subtitles.Font,
		SubtitleSize: cfg.Subtitles.FontSize,
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     cfg.Audio.Channels,
	}, render.ExecRunner{}, log)

	a.Ledger, err = storage.NewLedger(cfg.Storage.Database)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.Ledger.Close)

	deps := pipeline.Deps{
		Writer:      writer,
		Resolver:    resolver,
		Narrator:    narrator,
		Transcriber: transcriber,
		Renderer:    renderer,
		Store:       store,
		Fetcher:     downloader,
		Ledger:      a.Ledger,
	}
	if cfg.Publish.YouTube.Enabled {
		yt, err := publish.NewYouTube(ctx, cfg.Publish.YouTube, cfg.Secrets, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Publisher = yt
	}

	a.Pipeline = pipeline.New(deps, pipeline.Options{
		WorkDir:   cfg.Paths.WorkDir,
		Workers:   cfg.Workers,
		WindowSec: cfg.Subtitles.WindowSec,
		SRT: subtitles.SRTOptions{
			WrapWidth:     cfg.Subtitles.WrapWidth,
			MinDisplaySec: cfg.Subtitles.MinDisplaySec,
		},
		SignedURLExpiry: cfg.SignedURLExpiry(),
		Policy:          cfg.CallPolicy(),
	}, log)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) store(ctx context.Context, cfg *config.Config) (media.Storage, error) {
	if cfg.Storage.Backend == "gcs" {
		g, err := storage.NewGCS(ctx, cfg.Storage.Bucket, googleOptions(cfg)...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	}
	ls, err := storage.NewLocalStorage(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	a.FilesDir = ls.Dir()
	return ls, nil
}

func generator(ctx context.Context, cfg *config.Config) (script.Generator, error) {
	if cfg.Script.Provider == "groq" {
		return script.NewGroqGenerator(cfg.Script.GroqURL, cfg.Secrets.GroqAPIKey, cfg.Script.Model, *cfg.Script.Temperature)
	}
	return script.NewGeminiGenerator(ctx, cfg.Secrets.GeminiAPIKey, cfg.Script.Model, *cfg.Script.Temperature, cfg.Script.GeminiURL)
}

// googleOptions authenticates Google Cloud clients with a service account
// file when one is configured, otherwise with application default credentials.
func googleOptions(cfg *config.Config) []option.ClientOption {
	if cfg.Secrets.GoogleCredentials == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.Secrets.GoogleCredentials)}
}
