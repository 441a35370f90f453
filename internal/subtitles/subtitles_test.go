package subtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/retry"
)

func TestSegmentWords(t *testing.T) {
	cases := []struct {
		name   string
		words  []Word
		window float64
		want   []Segment
	}{
		{
			name:   "window close and zero-length tail",
			words:  []Word{{"a", 0}, {"b", 1}, {"c", 2.5}, {"d", 4}},
			window: 3,
			want:   []Segment{{"a b c", 0, 3}, {"d", 4, 0}},
		},
		{
			name:   "no words",
			words:  nil,
			window: 3,
			want:   nil,
		},
		{
			name:   "single word at zero",
			words:  []Word{{"hello", 0}},
			window: 3,
			want:   []Segment{{"hello", 0, 0}},
		},
		{
			name:   "word exactly on the boundary opens the next window",
			words:  []Word{{"one", 0}, {"two", 3}, {"three", 4}},
			window: 3,
			want:   []Segment{{"one", 0, 3}, {"two three", 3, 1}},
		},
		{
			name:   "leading silence longer than the window",
			words:  []Word{{"late", 5}, {"start", 6}},
			window: 3,
			want:   []Segment{{"late start", 5, 1}},
		},
		{
			name:   "gap inside the transcript",
			words:  []Word{{"x", 0.5}, {"y", 10}, {"z", 11.5}},
			window: 3,
			want:   []Segment{{"x", 0, 3}, {"y z", 10, 1.5}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SegmentWords(tc.words, tc.window)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("SegmentWords() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSegmentInvariants(t *testing.T) {
	var words []Word
	for i := 0; i < 200; i++ {
		words = append(words, Word{Text: "w", Offset: float64(i) * 0.37})
	}
	segs := SegmentWords(words, 3)
	for i, s := range segs {
		if s.Duration > 3 {
			t.Errorf("segment %d spans %v, more than the window", i, s.Duration)
		}
		if i > 0 && s.Start < segs[i-1].End() {
			t.Errorf("segment %d overlaps the previous one", i)
		}
	}
	var n int
	for _, s := range segs {
		n += len(strings.Fields(s.Text))
	}
	if n != len(words) {
		t.Errorf("segments hold %d words, want %d", n, len(words))
	}
}

func TestChunk(t *testing.T) {
	data := []byte("abcdefghij")
	got := Chunk(data, 4)
	want := [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ij")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Chunk() = %q, want %q", got, want)
	}
	if Chunk(nil, 4) != nil || Chunk(data, 0) != nil {
		t.Error("expected no chunks")
	}
}

type fakeRecognizer struct {
	perChunk [][]Word
	calls    int
	sizes    []int
	err      error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, pcm []byte, sampleRate, channels int) ([]Word, error) {
	f.sizes = append(f.sizes, len(pcm))
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	f.calls++
	return append([]Word(nil), f.perChunk[i]...), nil
}

func TestTranscribeConcatenatesInChunkOrder(t *testing.T) {
	rec := &fakeRecognizer{perChunk: [][]Word{{{"a", 0}, {"b", 0.2}}, {{"c", 0.1}}}}
	// 1 second of mono 100 Hz audio is 200 bytes; chunks of 150 bytes are 0.75s.
	opts := TranscriberOptions{MaxChunkBytes: 151, SampleRate: 100, Channels: 1, Policy: retry.Policy{Attempts: 1}}

	words, err := NewTranscriber(rec, opts, nil).Transcribe(context.Background(), make([]byte, 200))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !reflect.DeepEqual(rec.sizes, []int{150, 50}) {
		t.Errorf("chunk sizes = %v, want frame-aligned [150 50]", rec.sizes)
	}
	want := []Word{{"a", 0}, {"b", 0.2}, {"c", 0.1}}
	if !reflect.DeepEqual(words, want) {
		t.Errorf("words = %+v, want %+v", words, want)
	}
}

func TestTranscribeRenormalize(t *testing.T) {
	rec := &fakeRecognizer{perChunk: [][]Word{{{"a", 0}}, {{"c", 0.1}}}}
	opts := TranscriberOptions{MaxChunkBytes: 150, SampleRate: 100, Channels: 1, Renormalize: true, Policy: retry.Policy{Attempts: 1}}

	words, err := NewTranscriber(rec, opts, nil).Transcribe(context.Background(), make([]byte, 200))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if len(words) != 2 || words[1].Offset < 0.849 || words[1].Offset > 0.851 {
		t.Errorf("expected second chunk shifted by 0.75s, got %+v", words)
	}
}

func TestTranscribeFailure(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("quota")}
	opts := TranscriberOptions{MaxChunkBytes: 100, SampleRate: 100, Channels: 1, Policy: retry.Policy{Attempts: 2, Backoff: time.Millisecond}}

	_, err := NewTranscriber(rec, opts, nil).Transcribe(context.Background(), make([]byte, 10))
	if !errors.Is(err, pipeerr.ErrRecognition) {
		t.Fatalf("expected ErrRecognition, got %v", err)
	}
	if len(rec.sizes) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(rec.sizes))
	}
}

func TestWriteSRT(t *testing.T) {
	segs := []Segment{{"Hello There World", 0, 3}, {"Bye", 3.5, 0}}
	var buf bytes.Buffer
	if err := WriteSRT(&buf, segs, SRTOptions{WrapWidth: 11, MinDisplaySec: 1}); err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:00,000 --> 00:00:03,000\nhello there\nworld\n\n" +
		"2\n00:00:03,500 --> 00:00:04,500\nbye\n\n"
	if buf.String() != want {
		t.Errorf("WriteSRT() =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestWriteSRTMinDisplayStopsAtNextCue(t *testing.T) {
	segs := []Segment{{"a", 0, 0.2}, {"b", 0.5, 1}}
	var buf bytes.Buffer
	if err := WriteSRT(&buf, segs, SRTOptions{WrapWidth: 70, MinDisplaySec: 1}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "00:00:00,000 --> 00:00:00,500") {
		t.Errorf("first cue should be held until the second starts:\n%s", buf.String())
	}
}

func TestWrap(t *testing.T) {
	if got := Wrap("a supercalifragilistic word", 5); got != "a\nsupercalifragilistic\nword" {
		t.Errorf("unexpected wrap %q", got)
	}
	if got := Wrap("  spaced   out  ", 70); got != "spaced out" {
		t.Errorf("unexpected wrap %q", got)
	}
}

func TestGoogleRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Config struct {
				Encoding              string
				SampleRateHertz       int
				AudioChannelCount     int
				EnableWordTimeOffsets bool
			}
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Config.Encoding != "LINEAR16" || body.Config.SampleRateHertz != 44100 ||
			body.Config.AudioChannelCount != 2 || !body.Config.EnableWordTimeOffsets {
			t.Errorf("unexpected config %+v", body.Config)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"hi there","words":[
			{"word":"hi","startTime":"0s"},{"word":"there","startTime":"1.500s"}]}]}]}`))
	}))
	defer srv.Close()

	g, err := NewGoogleRecognizer(context.Background(), "en-US", option.WithEndpoint(srv.URL+"/"), option.WithAPIKey("k"))
	if err != nil {
		t.Fatal(err)
	}
	words, err := g.Recognize(context.Background(), []byte{0, 0, 0, 0}, 44100, 2)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	want := []Word{{"hi", 0}, {"there", 1.5}}
	if !reflect.DeepEqual(words, want) {
		t.Errorf("words = %+v, want %+v", words, want)
	}
}
