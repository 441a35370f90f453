// Package render composes scene clips, subtitles and music with ffmpeg.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"shortform-studio/internal/edit"
	"shortform-studio/internal/logging"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/timeline"
	"shortform-studio/internal/types"
)

type Options struct {
	FFmpeg       string
	FFprobe      string
	FPS          int
	MusicDir     string
	FontsDir     string
	MusicVolume  float64
	OverlaySize  int
	SubtitleFont string
	SubtitleSize int
	SampleRate   int
	Channels     int
}

// FFmpeg renders with the ffmpeg and ffprobe binaries
type FFmpeg struct {
	opts Options
	run  Runner
	log  *zap.Logger
}

func New(opts Options, run Runner, log *zap.Logger) *FFmpeg {
	if run == nil {
		run = ExecRunner{}
	}
	return &FFmpeg{opts: opts, run: run, log: logging.OrNop(log).Named("render")}
}

// SceneClip renders one scene for exactly its narration length, with the
// narration as its audio track.
func (f *FFmpeg) SceneClip(ctx context.Context, scene timeline.TimedScene, res types.Resolution, outDir string) (string, error) {
	out := filepath.Join(outDir, fmt.Sprintf("clip_%03d.mp4", scene.Index))
	dur := scene.Duration()

	loops := 0
	if scene.Kind.IsVideo() {
		clipDur, err := f.ProbeDuration(ctx, scene.LocalPath)
		if err != nil {
			f.log.Warn("could not measure clip, assuming it is long enough", zap.Int("scene", scene.Index), zap.Error(err))
			clipDur = dur
		}
		if clipDur > 0 && clipDur < dur {
			loops = int(dur/clipDur) + 1
		}
	}

	var textFile string
	if o := scene.Overlay; o != nil && strings.TrimSpace(o.Content) != "" {
		// drawtext reads overlay text from a file so it needs no filtergraph quoting.
		textFile = filepath.Join(outDir, fmt.Sprintf("overlay_%03d.txt", scene.Index))
		if err := os.WriteFile(textFile, []byte(o.Content), 0644); err != nil {
			return "", pipeerr.Wrap("render", scene.Index, pipeerr.ErrRender, err)
		}
	}

	args := f.sceneClipArgs(scene, res, loops, textFile, out)
	f.log.Info("rendering scene clip", zap.Int("scene", scene.Index), zap.Float64("duration", dur))
	if err := f.run.Run(ctx, f.opts.FFmpeg, args...); err != nil {
		return "", pipeerr.Wrap("render", scene.Index, pipeerr.ErrRender, err)
	}
	return out, nil
}

func (f *FFmpeg) sceneClipArgs(scene timeline.TimedScene, res types.Resolution, loops int, textFile, out string) []string {
	args := []string{"-y"}
	if scene.Kind.IsVideo() {
		if loops > 0 {
			args = append(args, "-stream_loop", strconv.Itoa(loops))
		}
	} else {
		args = append(args, "-loop", "1")
	}
	args = append(args,
		"-i", scene.LocalPath,
		"-i", scene.Audio.Path,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-vf", f.frameFilter(res)+f.overlayFilter(scene.Overlay, textFile),
		"-t", fmt.Sprintf("%.3f", scene.Duration()),
	)
	return append(args, f.encodeArgs(out)...)
}

// frameFilter fits any input into the output frame
func (f *FFmpeg) frameFilter(res types.Resolution) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
		res.Width, res.Height, res.Width, res.Height, f.opts.FPS)
}

func (f *FFmpeg) overlayFilter(o *types.TextOverlay, textFile string) string {
	if o == nil || textFile == "" {
		return ""
	}

	y := "(h-text_h)/2"
	switch strings.ToLower(o.Position) {
	case "top":
		y = "h*0.1"
	case "bottom":
		y = "h*0.8-text_h"
	}

	filter := fmt.Sprintf(",drawtext=textfile=%s:expansion=none:fontcolor=white@0.8:fontsize=%d:borderw=2:bordercolor=black:x=(w-text_w)/2:y=%s",
		filterArg(textFile), f.opts.OverlaySize, y)
	if font := f.fontFile(o.Font); font != "" {
		filter += ":fontfile=" + filterArg(font)
	}
	return filter
}

func (f *FFmpeg) fontFile(name string) string {
	if name == "" || f.opts.FontsDir == "" {
		return ""
	}
	for _, ext := range []string{".TTF", ".ttf", ".otf"} {
		p := filepath.Join(f.opts.FontsDir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (f *FFmpeg) encodeArgs(out string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", strconv.Itoa(f.opts.SampleRate),
		"-ac", strconv.Itoa(f.opts.Channels),
		"-movflags", "+faststart",
		out,
	}
}

// Concat joins clips that share one encoding, in order.
func (f *FFmpeg) Concat(ctx context.Context, clips []string, out string) error {
	if len(clips) == 0 {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, fmt.Errorf("no clips to concatenate"))
	}
	listFile := strings.TrimSuffix(out, filepath.Ext(out)) + "_concat.txt"
	var lines []string
	for _, c := range clips {
		abs, err := filepath.Abs(c)
		if err != nil {
			abs = c
		}
		lines = append(lines, fmt.Sprintf("file '%s'", strings.ReplaceAll(abs, "'", `'\''`)))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, err)
	}

	err := f.run.Run(ctx, f.opts.FFmpeg, "-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", out)
	if err != nil {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, err)
	}
	return nil
}

// ExtractNarration writes the video's audio as raw LINEAR16 for recognition.
func (f *FFmpeg) ExtractNarration(ctx context.Context, video, out string) error {
	err := f.run.Run(ctx, f.opts.FFmpeg, "-y", "-i", video, "-vn",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(f.opts.SampleRate),
		"-ac", strconv.Itoa(f.opts.Channels),
		out)
	if err != nil {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, err)
	}
	return nil
}

// Finish burns subtitles and mixes the background music under the narration.
// An empty srt path renders without subtitles.
func (f *FFmpeg) Finish(ctx context.Context, video, srt, music, out string) error {
	musicFile := filepath.Join(f.opts.MusicDir, music+".mp3")
	if _, err := os.Stat(musicFile); err != nil {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, fmt.Errorf("music %q: %w", music, err))
	}
	f.log.Info("finishing video", zap.String("music", music), zap.Bool("subtitles", srt != ""))
	if err := f.run.Run(ctx, f.opts.FFmpeg, f.finishArgs(video, srt, musicFile, out)...); err != nil {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, err)
	}
	return nil
}

// Caption burns subtitles into a clip and keeps its audio as is.
func (f *FFmpeg) Caption(ctx context.Context, video, srt, out string) error {
	args := []string{"-y", "-i", video,
		"-filter_complex", f.subtitleFilter(srt),
		"-map", "[v]", "-map", "0:a",
	}
	if err := f.run.Run(ctx, f.opts.FFmpeg, append(args, f.encodeArgs(out)...)...); err != nil {
		return pipeerr.Wrap("render", pipeerr.NoScene, pipeerr.ErrRender, err)
	}
	return nil
}

func (f *FFmpeg) subtitleFilter(srt string) string {
	if srt == "" {
		return "[0:v]null[v]"
	}
	return fmt.Sprintf(
		"[0:v]subtitles=%s:force_style='FontName=%s,FontSize=%d,PrimaryColour=&H00FFFFFF,BackColour=&H66000000,BorderStyle=3,Alignment=2,MarginV=30'[v]",
		filterArg(srt), f.opts.SubtitleFont, f.opts.SubtitleSize)
}

func (f *FFmpeg) finishArgs(video, srt, musicFile, out string) []string {
	filter := f.subtitleFilter(srt) + ";" +
		fmt.Sprintf("[1:a]volume=%.2f[m];[0:a][m]amix=inputs=2:duration=first:normalize=0[a]", f.opts.MusicVolume)

	args := []string{"-y",
		"-i", video,
		"-stream_loop", "-1", "-i", musicFile,
		"-filter_complex", filter,
		"-map", "[v]", "-map", "[a]",
		"-shortest",
	}
	return append(args, f.encodeArgs(out)...)
}

// Splice cuts the keep segments out of the previous render and joins them
// with the replacement clip in plan order. Retained spans keep whatever
// subtitles and music were burned into them.
func (f *FFmpeg) Splice(ctx context.Context, plan *edit.Plan, previous string, res types.Resolution, out string) error {
	args, err := f.spliceArgs(plan, previous, res, out)
	if err != nil {
		return pipeerr.Wrap("render", plan.Index, pipeerr.ErrRender, err)
	}
	f.log.Info("splicing edit", zap.Int("scene", plan.Index), zap.Int("segments", len(plan.Segments)))
	if err := f.run.Run(ctx, f.opts.FFmpeg, args...); err != nil {
		return pipeerr.Wrap("render", plan.Index, pipeerr.ErrRender, err)
	}
	return nil
}

func (f *FFmpeg) spliceArgs(plan *edit.Plan, previous string, res types.Resolution, out string) ([]string, error) {
	args := []string{"-y", "-i", previous}
	var filters, labels []string
	frame := f.frameFilter(res)

	for i, seg := range plan.Segments {
		switch seg.Kind {
		case edit.KeepBefore, edit.KeepAfter:
			filters = append(filters,
				fmt.Sprintf("[0:v]trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS,%s[v%d]", seg.From, seg.To, frame, i),
				fmt.Sprintf("[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[a%d]", seg.From, seg.To, i))
		case edit.Replacement:
			if seg.ClipPath == "" {
				return nil, fmt.Errorf("replacement segment has no clip")
			}
			input := len(args) / 2 // one "-i path" pair per input after "-y"
			args = append(args, "-i", seg.ClipPath)
			filters = append(filters,
				fmt.Sprintf("[%d:v]setpts=PTS-STARTPTS,%s[v%d]", input, frame, i),
				fmt.Sprintf("[%d:a]asetpts=PTS-STARTPTS[a%d]", input, i))
		default:
			return nil, fmt.Errorf("unknown segment kind %q", seg.Kind)
		}
		labels = append(labels, fmt.Sprintf("[v%d][a%d]", i, i))
	}

	filter := strings.Join(filters, ";") + ";" +
		strings.Join(labels, "") + fmt.Sprintf("concat=n=%d:v=1:a=1[v][a]", len(plan.Segments))
	args = append(args, "-filter_complex", filter, "-map", "[v]", "-map", "[a]")
	return append(args, f.encodeArgs(out)...), nil
}

// ProbeDuration measures any media file.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.run.Output(ctx, f.opts.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

// ProbeResolution reads the frame size of the first video stream.
func (f *FFmpeg) ProbeResolution(ctx context.Context, path string) (types.Resolution, error) {
	out, err := f.run.Output(ctx, f.opts.FFprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path)
	if err != nil {
		return types.Resolution{}, err
	}
	var res types.Resolution
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%dx%d", &res.Width, &res.Height); err != nil {
		return types.Resolution{}, fmt.Errorf("parse frame size %q: %w", strings.TrimSpace(string(out)), err)
	}
	return res, nil
}

// filterArg escapes a filter option value twice: once for the option
// parser and once for the filtergraph parser.
func filterArg(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	return escapeChars(escapeChars(s, `\':`), `\'[],;`)
}

func escapeChars(s, special string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
