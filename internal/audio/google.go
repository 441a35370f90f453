package audio

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"
)

// GoogleSpeech synthesizes LINEAR16 WAV audio with Cloud Text-to-Speech
type GoogleSpeech struct {
	svc          *texttospeech.Service
	voice        string
	languageCode string
	sampleRate   int
}

func NewGoogleSpeech(ctx context.Context, voice, languageCode string, sampleRate int, opts ...option.ClientOption) (*GoogleSpeech, error) {
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("texttospeech service: %w", err)
	}
	return &GoogleSpeech{svc: svc, voice: voice, languageCode: languageCode, sampleRate: sampleRate}, nil
}

func (g *GoogleSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.languageCode,
			Name:         g.voice,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(g.sampleRate),
		},
	}
	resp, err := g.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}
	return audio, nil
}
