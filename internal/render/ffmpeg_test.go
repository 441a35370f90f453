package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shortform-studio/internal/audio"
	"shortform-studio/internal/edit"
	"shortform-studio/internal/media"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/timeline"
	"shortform-studio/internal/types"
)

type fakeRunner struct {
	runs   [][]string
	probe  string
	runErr error
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args ...string) error {
	f.runs = append(f.runs, append([]string{bin}, args...))
	return f.runErr
}

func (f *fakeRunner) Output(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return []byte(f.probe + "\n"), nil
}

func testOptions(dir string) Options {
	return Options{
		FFmpeg: "ffmpeg", FFprobe: "ffprobe", FPS: 25,
		MusicDir: dir, FontsDir: dir, MusicVolume: 0.4, OverlaySize: 100,
		SubtitleFont: "Trebuchet MS", SubtitleSize: 18, SampleRate: 44100, Channels: 2,
	}
}

func timed(kind types.Kind, start, end float64, overlay *types.TextOverlay) timeline.TimedScene {
	return timeline.TimedScene{
		NarratedScene: audio.NarratedScene{
			ResolvedScene: media.ResolvedScene{Index: 1, Kind: kind, LocalPath: "/w/media/scene_001.mp4", Overlay: overlay},
			Audio:         audio.NarrationAsset{Path: "/w/audio/scene_001.wav", Duration: end - start},
		},
		Start: start,
		End:   end,
	}
}

func argString(args []string) string { return strings.Join(args, " ") }

func TestSceneClipLoopsShortVideo(t *testing.T) {
	run := &fakeRunner{probe: "2.0"}
	f := New(testOptions(t.TempDir()), run, nil)

	out, err := f.SceneClip(context.Background(), timed(types.StockVideo, 3, 8, nil), types.ResolutionFor("portrait"), "/w")
	if err != nil {
		t.Fatalf("SceneClip failed: %v", err)
	}
	if out != filepath.Join("/w", "clip_001.mp4") {
		t.Errorf("unexpected output %s", out)
	}
	got := argString(run.runs[0])
	for _, want := range []string{"-stream_loop 3", "-t 5.000", "scale=720:1280", "fps=25", "-map 1:a:0"} {
		if !strings.Contains(got, want) {
			t.Errorf("args missing %q:\n%s", want, got)
		}
	}
}

func TestSceneClipPhotoWithOverlay(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Bebas.TTF"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	run := &fakeRunner{}
	f := New(testOptions(dir), run, nil)

	overlay := &types.TextOverlay{Content: "Let's go: 100%, [now]", Font: "Bebas", Position: "top"}
	out := t.TempDir()
	if _, err := f.SceneClip(context.Background(), timed(types.UserPhoto, 0, 2, overlay), types.ResolutionFor("landscape"), out); err != nil {
		t.Fatalf("SceneClip failed: %v", err)
	}
	textFile := filepath.Join(out, "overlay_001.txt")
	if b, err := os.ReadFile(textFile); err != nil || string(b) != overlay.Content {
		t.Fatalf("overlay text file = %q, %v", b, err)
	}
	got := argString(run.runs[0])
	for _, want := range []string{"-loop 1", "scale=1280:720", "textfile=" + filterArg(textFile), "expansion=none", "y=h*0.1", "Bebas.TTF"} {
		if !strings.Contains(got, want) {
			t.Errorf("args missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "-stream_loop") {
		t.Errorf("photo clip must not stream_loop")
	}
}

func TestFinishMixesMusicAndSubtitles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "calm.mp3"), []byte("mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	run := &fakeRunner{}
	f := New(testOptions(dir), run, nil)

	if err := f.Finish(context.Background(), "/w/joined.mp4", "/w/subs.srt", "calm", "/w/final.mp4"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	got := argString(run.runs[0])
	for _, want := range []string{"subtitles=/w/subs.srt:force_style", "volume=0.40", "amix=inputs=2:duration=first", "-stream_loop -1"} {
		if !strings.Contains(got, want) {
			t.Errorf("args missing %q:\n%s", want, got)
		}
	}

	if err := f.Finish(context.Background(), "/w/joined.mp4", "", "missing", "/w/final.mp4"); !errors.Is(err, pipeerr.ErrRender) {
		t.Errorf("expected ErrRender for unknown music, got %v", err)
	}
}

func TestConcatWritesList(t *testing.T) {
	dir := t.TempDir()
	run := &fakeRunner{}
	f := New(testOptions(dir), run, nil)

	out := filepath.Join(dir, "joined.mp4")
	if err := f.Concat(context.Background(), []string{"/w/a.mp4", "/w/b.mp4"}, out); err != nil {
		t.Fatalf("Concat failed: %v", err)
	}
	list, err := os.ReadFile(filepath.Join(dir, "joined_concat.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(list) != "file '/w/a.mp4'\nfile '/w/b.mp4'" {
		t.Errorf("unexpected concat list %q", list)
	}
	if err := f.Concat(context.Background(), nil, out); !errors.Is(err, pipeerr.ErrRender) {
		t.Errorf("expected ErrRender for no clips, got %v", err)
	}
}

func TestSpliceArgs(t *testing.T) {
	f := New(testOptions(t.TempDir()), &fakeRunner{}, nil)
	plan := &edit.Plan{Index: 1, Segments: []edit.PlanSegment{
		{Kind: edit.KeepBefore, From: 0, To: 2},
		{Kind: edit.Replacement, From: 0, To: 4, ClipPath: "/w/clip_001.mp4"},
		{Kind: edit.KeepAfter, From: 5, To: 6.5},
	}}
	args, err := f.spliceArgs(plan, "/w/previous.mp4", types.ResolutionFor("portrait"), "/w/out.mp4")
	if err != nil {
		t.Fatal(err)
	}
	got := argString(args)
	for _, want := range []string{
		"-i /w/previous.mp4 -i /w/clip_001.mp4",
		"[0:v]trim=start=0.000:end=2.000",
		"[1:v]setpts=PTS-STARTPTS",
		"[0:a]atrim=start=5.000:end=6.500",
		"[v0][a0][v1][a1][v2][a2]concat=n=3:v=1:a=1[v][a]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args missing %q:\n%s", want, got)
		}
	}

	plan.Segments[1].ClipPath = ""
	if _, err := f.spliceArgs(plan, "/w/previous.mp4", types.ResolutionFor("portrait"), "/w/out.mp4"); err == nil {
		t.Error("expected error for replacement without clip")
	}
}

func TestRunnerFailureIsRenderError(t *testing.T) {
	run := &fakeRunner{runErr: errors.New("exit status 1")}
	f := New(testOptions(t.TempDir()), run, nil)
	err := f.ExtractNarration(context.Background(), "/w/in.mp4", "/w/out.raw")
	if !errors.Is(err, pipeerr.ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	if got := argString(run.runs[0]); !strings.Contains(got, "-f s16le -acodec pcm_s16le -ar 44100 -ac 2") {
		t.Errorf("unexpected extract args %s", got)
	}
}

func TestProbeResolution(t *testing.T) {
	f := New(testOptions(t.TempDir()), &fakeRunner{probe: "720x1280"}, nil)
	res, err := f.ProbeResolution(context.Background(), "/w/previous.mp4")
	if err != nil {
		t.Fatalf("ProbeResolution failed: %v", err)
	}
	if res != (types.Resolution{Width: 720, Height: 1280}) {
		t.Errorf("unexpected resolution %+v", res)
	}

	f = New(testOptions(t.TempDir()), &fakeRunner{probe: ""}, nil)
	if _, err := f.ProbeResolution(context.Background(), "/w/audio_only.mp4"); err == nil {
		t.Error("expected an error when no frame size is reported")
	}
}

func TestFilterArgEscapesBothLevels(t *testing.T) {
	cases := map[string]string{
		"/w/subs.srt":      "/w/subs.srt",
		"/w/it's:here.srt": `/w/it\\\'s\\:here.srt`,
		"/w/a,b[1];c.ttf":  `/w/a\,b\[1\]\;c.ttf`,
		`C:\fonts\x.ttf`:   `C\\:/fonts/x.ttf`,
	}
	for in, want := range cases {
		if got := filterArg(in); got != want {
			t.Errorf("filterArg(%q) = %s, want %s", in, got, want)
		}
	}
}
