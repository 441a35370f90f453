package subtitles

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/speech/v1"

	"shortform-studio/internal/logging"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/retry"
)

// Recognizer transcribes one chunk of raw LINEAR16 audio.
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte, sampleRate, channels int) ([]Word, error)
}

// Chunk splits data into consecutive pieces of at most size bytes.
func Chunk(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for i := 0; i < len(data); i += size {
		end := min(i+size, len(data))
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

type TranscriberOptions struct {
	MaxChunkBytes int
	SampleRate    int
	Channels      int
	// Renormalize adds each chunk's start time to its word offsets, for
	// recognizers that restart their clock on every call.
	Renormalize bool
	Policy      retry.Policy
}

// Transcriber runs a recognizer over a track too large for one request
type Transcriber struct {
	rec  Recognizer
	opts TranscriberOptions
	log  *zap.Logger
}

func NewTranscriber(rec Recognizer, opts TranscriberOptions, log *zap.Logger) *Transcriber {
	if opts.Channels < 1 {
		opts.Channels = 1
	}
	return &Transcriber{rec: rec, opts: opts, log: logging.OrNop(log).Named("subtitles")}
}

// Transcribe recognizes pcm chunk by chunk and concatenates the words in chunk order.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) ([]Word, error) {
	frame := 2 * t.opts.Channels
	size := t.opts.MaxChunkBytes - t.opts.MaxChunkBytes%frame
	if size <= 0 {
		size = t.opts.MaxChunkBytes
	}
	bytesPerSec := float64(t.opts.SampleRate * frame)

	chunks := Chunk(pcm, size)
	t.log.Info("transcribing narration", zap.Int("bytes", len(pcm)), zap.Int("chunks", len(chunks)))

	var words []Word
	for i, c := range chunks {
		var got []Word
		err := retry.Do(ctx, t.opts.Policy, t.log, fmt.Sprintf("recognize chunk %d", i), func(ctx context.Context) error {
			var err error
			got, err = t.rec.Recognize(ctx, c, t.opts.SampleRate, t.opts.Channels)
			return err
		})
		if err != nil {
			return nil, pipeerr.Wrap("subtitles", pipeerr.NoScene, pipeerr.ErrRecognition, fmt.Errorf("chunk %d: %w", i, err))
		}

		if t.opts.Renormalize && bytesPerSec > 0 {
			shift := float64(i*size) / bytesPerSec
			for j := range got {
				got[j].Offset += shift
			}
		}
		words = append(words, got...)
	}
	return words, nil
}

// TranscribeFile reads a raw PCM track from disk.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string) ([]Word, error) {
	pcm, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerr.Wrap("subtitles", pipeerr.NoScene, pipeerr.ErrRecognition, err)
	}
	return t.Transcribe(ctx, pcm)
}

// GoogleRecognizer uses the Cloud Speech-to-Text synchronous recognize call
type GoogleRecognizer struct {
	svc          *speech.Service
	languageCode string
}

func NewGoogleRecognizer(ctx context.Context, languageCode string, opts ...option.ClientOption) (*GoogleRecognizer, error) {
	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech service: %w", err)
	}
	return &GoogleRecognizer{svc: svc, languageCode: languageCode}, nil
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate, channels int) ([]Word, error) {
	req := &speech.RecognizeRequest{
		Audio: &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(pcm)},
		Config: &speech.RecognitionConfig{
			Encoding:              "LINEAR16",
			SampleRateHertz:       int64(sampleRate),
			AudioChannelCount:     int64(channels),
			LanguageCode:          g.languageCode,
			EnableWordTimeOffsets: true,
		},
	}
	resp, err := g.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	var words []Word
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		for _, w := range r.Alternatives[0].Words {
			off, err := parseOffset(w.StartTime)
			if err != nil {
				return nil, fmt.Errorf("word %q: %w", w.Word, err)
			}
			words = append(words, Word{Text: w.Word, Offset: off})
		}
	}
	return words, nil
}

// parseOffset reads the API's duration strings, e.g. "1.500s".
func parseOffset(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
