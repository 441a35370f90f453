// Package audio synthesizes one narration file per scene and measures it.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"shortform-studio/internal/logging"
	"shortform-studio/internal/media"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/retry"
)

// Speaker turns text into LINEAR16 WAV bytes.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NarrationAsset is a local audio file and its measured length in seconds.
type NarrationAsset struct {
	Path     string
	Duration float64
}

// NarratedScene is a resolved scene with its narration attached
type NarratedScene struct {
	media.ResolvedScene
	Audio NarrationAsset
}

type Options struct {
	SampleRate    int
	EmptySceneSec float64
	Policy        retry.Policy
}

// Synthesizer writes narration WAVs into a per-request directory
type Synthesizer struct {
	speaker Speaker
	opts    Options
	log     *zap.Logger
}

func NewSynthesizer(speaker Speaker, opts Options, log *zap.Logger) *Synthesizer {
	return &Synthesizer{speaker: speaker, opts: opts, log: logging.OrNop(log).Named("audio")}
}

var errEmptyAudio = errors.New("speech provider returned empty audio")

// Synthesize writes the narration for text to dir/<name>.wav.
// Empty text makes no provider call and produces EmptySceneSec of silence.
func (s *Synthesizer) Synthesize(ctx context.Context, text, dir, name string) (NarrationAsset, error) {
	out := filepath.Join(dir, name+".wav")

	if strings.TrimSpace(text) == "" {
		if err := WriteSilence(out, s.opts.EmptySceneSec, s.opts.SampleRate, 1); err != nil {
			return NarrationAsset{}, fmt.Errorf("write silence: %w", err)
		}
	} else {
		var data []byte
		err := retry.Do(ctx, s.opts.Policy, s.log, "synthesize "+name, func(ctx context.Context) error {
			var err error
			data, err = s.speaker.Synthesize(ctx, text)
			if err == nil && len(data) == 0 {
				err = errEmptyAudio
			}
			return err
		})
		if err != nil {
			return NarrationAsset{}, err
		}
		if _, err := ReadWavInfo(bytes.NewReader(data)); err != nil {
			// Some voices answer with bare PCM; give it a header at the requested rate.
			if err := WritePCM(out, data, s.opts.SampleRate, 1); err != nil {
				return NarrationAsset{}, fmt.Errorf("write narration: %w", err)
			}
		} else if err := os.WriteFile(out, data, 0644); err != nil {
			return NarrationAsset{}, fmt.Errorf("write narration: %w", err)
		}
	}

	dur, err := WavDuration(out)
	if err != nil {
		return NarrationAsset{}, fmt.Errorf("measure narration: %w", err)
	}
	if dur <= 0 {
		return NarrationAsset{}, fmt.Errorf("narration %s has no duration", name)
	}
	return NarrationAsset{Path: out, Duration: dur}, nil
}

// Narrate synthesizes the narration of one resolved scene.
func (s *Synthesizer) Narrate(ctx context.Context, scene media.ResolvedScene, dir string) (NarratedScene, error) {
	asset, err := s.Synthesize(ctx, scene.Narration, dir, fmt.Sprintf("scene_%03d", scene.Index))
	if err != nil {
		return NarratedScene{}, pipeerr.Wrap("audio", scene.Index, pipeerr.ErrSynthesis, err)
	}
	s.log.Info("narration ready", zap.Int("scene", scene.Index), zap.Float64("duration", asset.Duration))
	return NarratedScene{ResolvedScene: scene, Audio: asset}, nil
}
