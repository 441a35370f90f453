package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"shortform-studio/internal/config"
	"shortform-studio/internal/logging"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/retry"
	"shortform-studio/internal/types"
)

// Generator is the untrusted text producer behind script generation.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	DescribeImage(ctx context.Context, mimeType string, data []byte, prompt string) (string, error)
}

const (
	describeImagePrompt = "write a short one-sentence description for the image"
	describeVideoPrompt = "write a short one-paragraph description for a video file named %q, depending on its likely content."
)

// Writer asks the model for a scene script and validates what comes back
type Writer struct {
	gen       Generator
	validator *Validator
	cfg       *config.Config
	log       *zap.Logger
}

func NewWriter(gen Generator, cfg *config.Config, log *zap.Logger) *Writer {
	return &Writer{
		gen:       gen,
		validator: NewValidator(cfg.Options.Music),
		cfg:       cfg,
		log:       logging.OrNop(log).Named("script"),
	}
}

// Describe asks the model what each uploaded file shows. A failed description
// is not fatal: the file name stands in for it.
func (w *Writer) Describe(ctx context.Context, mediaDir string, files []string) []MediaDescriptor {
	var out []MediaDescriptor
	for _, name := range files {
		form, mime, ok := types.FormForFile(name)
		if !ok {
			w.log.Warn("skipping unsupported media file", zap.String("file", name))
			continue
		}

		w.log.Info("describing user media", zap.String("file", name), zap.String("form", string(form)))
		var desc string
		err := retry.Do(ctx, w.cfg.CallPolicy(), w.log, "describe "+name, func(ctx context.Context) error {
			var err error
			if form == types.FormPhoto {
				data, rerr := os.ReadFile(filepath.Join(mediaDir, name))
				if rerr != nil {
					return retry.Permanent(rerr)
				}
				desc, err = w.gen.DescribeImage(ctx, mime, data, describeImagePrompt)
			} else {
				desc, err = w.gen.Generate(ctx, "", fmt.Sprintf(describeVideoPrompt, name))
			}
			return err
		})
		if err != nil {
			w.log.Warn("media description failed, using file name", zap.String("file", name), zap.Error(err))
			desc = name
		}
		out = append(out, MediaDescriptor{Source: name, Form: form, Desc: desc})
	}
	return out
}

// Run generates and validates the scene script for a brief.
// Model failures are retried; a malformed answer is not.
func (w *Writer) Run(ctx context.Context, brief types.Brief, media []MediaDescriptor) (*SceneScript, error) {
	profile := ProfileFor(len(media) > 0, brief.UseStockMedia)
	system, err := SystemPrompt(profile, w.cfg.Script.ProfilesDir, w.cfg.Options)
	if err != nil {
		return nil, pipeerr.Wrap("script", pipeerr.NoScene, pipeerr.ErrScriptGeneration, err)
	}
	prompt := UserPrompt(brief, media)

	w.log.Info("generating script", zap.String("profile", string(profile)), zap.Int("media", len(media)))
	var raw string
	err = retry.Do(ctx, w.cfg.CallPolicy(), w.log, "generate script", func(ctx context.Context) error {
		var err error
		raw, err = w.gen.Generate(ctx, system, prompt)
		return err
	})
	if err != nil {
		return nil, pipeerr.Wrap("script", pipeerr.NoScene, pipeerr.ErrScriptGeneration, err)
	}

	doc, err := w.validator.Parse(raw)
	if err != nil {
		w.log.Error("model output rejected", zap.Error(err), zap.String("raw", truncate(raw, 300)))
		return nil, pipeerr.Wrap("script", pipeerr.NoScene, pipeerr.ErrMalformedScript, err)
	}

	known := lo.Map(media, func(m MediaDescriptor, _ int) string { return m.Source })
	for _, s := range doc.Scenes {
		if s.Kind.Source == types.SourceUser && !lo.Contains(known, s.MediaName) {
			return nil, pipeerr.Wrap("script", s.Index, pipeerr.ErrMalformedScript,
				fmt.Errorf("scene refers to unknown user media %q", s.MediaName))
		}
	}

	doc.Orientation = brief.Orientation
	doc.Resolution = types.ResolutionFor(brief.Orientation)
	doc.TargetDuration = brief.Duration

	w.log.Info("script ready", zap.Int("scenes", len(doc.Scenes)), zap.String("music", doc.Music))
	return doc, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
