// Package pipeline runs the generate and edit flows end to end:
// script, media, narration, timeline, render, subtitles and publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shortform-studio/internal/audio"
	"shortform-studio/internal/edit"
	"shortform-studio/internal/logging"
	"shortform-studio/internal/media"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/publish"
	"shortform-studio/internal/retry"
	"shortform-studio/internal/script"
	"shortform-studio/internal/storage"
	"shortform-studio/internal/subtitles"
	"shortform-studio/internal/timeline"
	"shortform-studio/internal/types"
)

type ScriptWriter interface {
	Describe(ctx context.Context, mediaDir string, files []string) []script.MediaDescriptor
	Run(ctx context.Context, brief types.Brief, media []script.MediaDescriptor) (*script.SceneScript, error)
}

type MediaResolver interface {
	Resolve(ctx context.Context, scene script.RawScene, req media.Request) (media.ResolvedScene, error)
}

type Narrator interface {
	Narrate(ctx context.Context, scene media.ResolvedScene, dir string) (audio.NarratedScene, error)
}

type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) ([]subtitles.Word, error)
}

// Renderer composes the media. It is stateless between calls.
type Renderer interface {
	SceneClip(ctx context.Context, scene timeline.TimedScene, res types.Resolution, outDir string) (string, error)
	Concat(ctx context.Context, clips []string, out string) error
	ExtractNarration(ctx context.Context, video, out string) error
	Finish(ctx context.Context, video, srt, music, out string) error
	Caption(ctx context.Context, video, srt, out string) error
	Splice(ctx context.Context, plan *edit.Plan, previous string, res types.Resolution, out string) error
	ProbeResolution(ctx context.Context, path string) (types.Resolution, error)
}

type Ledger interface {
	Record(ctx context.Context, r storage.Render) error
}

type Publisher interface {
	Publish(ctx context.Context, videoFile string, meta publish.Metadata) (*publish.Result, error)
}

// Deps are the collaborators of a Pipeline. Ledger and Publisher are optional.
type Deps struct {
	Writer      ScriptWriter
	Resolver    MediaResolver
	Narrator    Narrator
	Transcriber Transcriber
	Renderer    Renderer
	Store       media.Storage
	Fetcher     media.Downloader
	Ledger      Ledger
	Publisher   Publisher
}

type Options struct {
	WorkDir         string
	Workers         int
	WindowSec       float64
	SRT             subtitles.SRTOptions
	SignedURLExpiry time.Duration
	Policy          retry.Policy
}

// Result is what a caller gets back for a published video
type Result struct {
	ID        string          `json:"id"`
	SignedURL string          `json:"signed_url"`
	Script    types.Script    `json:"script"`
	YouTube   *publish.Result `json:"youtube,omitempty"`
}

type Pipeline struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options, log *zap.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{deps: deps, opts: opts, log: logging.OrNop(log).Named("pipeline")}
}

// Job is the per-request work directory. Everything under it is removed by
// Close once the request is answered, successful or not.
type Job struct {
	ID  string
	Dir string
}

func (j *Job) MediaDir() string { return filepath.Join(j.Dir, "media") }
func (j *Job) AudioDir() string { return filepath.Join(j.Dir, "audio") }
func (j *Job) ClipDir() string  { return filepath.Join(j.Dir, "clips") }

func (j *Job) path(name string) string { return filepath.Join(j.Dir, name) }

func (j *Job) Close() error { return os.RemoveAll(j.Dir) }

// NewJob creates a fresh work directory under the configured work dir.
func (p *Pipeline) NewJob() (*Job, error) {
	j := &Job{ID: uuid.NewString()}
	j.Dir = filepath.Join(p.opts.WorkDir, j.ID)
	for _, d := range []string{j.MediaDir(), j.AudioDir(), j.ClipDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	return j, nil
}

// Generate turns a brief into a published video. Uploaded files named in
// brief.MediaFiles must already be in job.MediaDir().
func (p *Pipeline) Generate(ctx context.Context, job *Job, brief types.Brief) (*Result, error) {
	if missing := brief.Missing(); len(missing) > 0 {
		return nil, pipeerr.Wrap("brief", pipeerr.NoScene, pipeerr.ErrInvalidBrief,
			fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	log := p.log.With(zap.String("job", job.ID))
	start := time.Now()

	log.Info("generate started", zap.String("title", brief.Title), zap.Int("media", len(brief.MediaFiles)))
	descriptors := p.deps.Writer.Describe(ctx, job.MediaDir(), brief.MediaFiles)
	doc, err := p.deps.Writer.Run(ctx, brief, descriptors)
	if err != nil {
		return nil, err
	}

	req := media.Request{Orientation: doc.Orientation, MediaDir: job.MediaDir()}
	resolved, err := fanOut(ctx, p.opts.Workers, doc.Scenes, func(ctx context.Context, s script.RawScene) (media.ResolvedScene, error) {
		return p.deps.Resolver.Resolve(ctx, s, req)
	})
	if err != nil {
		return nil, err
	}

	narrated, err := fanOut(ctx, p.opts.Workers, resolved, func(ctx context.Context, s media.ResolvedScene) (audio.NarratedScene, error) {
		return p.deps.Narrator.Narrate(ctx, s, job.AudioDir())
	})
	if err != nil {
		return nil, err
	}

	tl := timeline.Compile(narrated)
	log.Info("timeline compiled", zap.Int("scenes", len(tl.Scenes)), zap.Float64("total", tl.Total))

	clips, err := fanOut(ctx, p.opts.Workers, tl.Scenes, func(ctx context.Context, s timeline.TimedScene) (string, error) {
		return p.deps.Renderer.SceneClip(ctx, s, doc.Resolution, job.ClipDir())
	})
	if err != nil {
		return nil, err
	}

	joined := job.path("joined.mp4")
	if err := p.deps.Renderer.Concat(ctx, clips, joined); err != nil {
		return nil, err
	}
	srt, err := p.subtitle(ctx, job, joined, "full")
	if err != nil {
		return nil, err
	}
	final := job.path("final.mp4")
	if err := p.deps.Renderer.Finish(ctx, joined, srt, doc.Music, final); err != nil {
		return nil, err
	}

	res := &Result{ID: job.ID, Script: publishedScript(tl, doc)}
	if res.SignedURL, err = p.store(ctx, final, job.ID+".mp4"); err != nil {
		return nil, err
	}

	p.record(ctx, storage.Render{
		ID: job.ID, Kind: "generate", Title: brief.Title,
		ObjectKey: job.ID + ".mp4", SignedURL: res.SignedURL,
		Duration: tl.Total, Script: res.Script,
	})
	res.YouTube = p.publish(ctx, final, publish.MetadataFor(brief, res.Script))

	log.Info("generate finished", zap.Duration("elapsed", time.Since(start)), zap.Float64("duration", tl.Total))
	return res, nil
}

// Edit re-cuts the one scene flagged as edited and splices it into the
// previously published video. A user replacement must already be in
// job.MediaDir().
func (p *Pipeline) Edit(ctx context.Context, job *Job, req types.EditRequest) (*Result, error) {
	idx, err := edit.Target(req.Scenes)
	if err != nil {
		return nil, err
	}
	spans := make([][2]float64, len(req.Scenes))
	for i, s := range req.Scenes {
		spans[i] = [2]float64{s.StartTime, s.EndTime}
	}
	if err := timeline.Validate(spans); err != nil {
		return nil, fmt.Errorf("%w: previous timeline: %v", pipeerr.ErrInvalidEditTarget, err)
	}
	if strings.TrimSpace(req.SignedURL) == "" {
		return nil, fmt.Errorf("%w: signed_url is required", pipeerr.ErrInvalidEditTarget)
	}

	target := req.Scenes[idx]
	raw, err := replacementScene(idx, target)
	if err != nil {
		return nil, err
	}
	log := p.log.With(zap.String("job", job.ID), zap.Int("scene", idx))
	log.Info("edit started", zap.String("kind", target.Type.String()))

	previous := job.path("previous.mp4")
	err = retry.Do(ctx, p.opts.Policy, log, "download previous render", func(ctx context.Context) error {
		return p.deps.Fetcher.Download(ctx, req.SignedURL, previous)
	})
	if err != nil {
		return nil, pipeerr.Wrap("edit", pipeerr.NoScene, pipeerr.ErrPreviousRenderGone, err)
	}
	if req.Orientation == "" {
		// Kept spans must not be rescaled, so follow the previous frame size.
		size, err := p.deps.Renderer.ProbeResolution(ctx, previous)
		if err != nil {
			return nil, pipeerr.Wrap("edit", pipeerr.NoScene, pipeerr.ErrPreviousRenderGone, err)
		}
		req.Orientation = types.OrientationFor(size)
		log.Info("orientation taken from previous render", zap.String("orientation", req.Orientation))
	}

	resolved, err := p.deps.Resolver.Resolve(ctx, raw, media.Request{Orientation: req.Orientation, MediaDir: job.MediaDir()})
	if err != nil {
		return nil, err
	}
	narrated, err := p.deps.Narrator.Narrate(ctx, resolved, job.AudioDir())
	if err != nil {
		return nil, err
	}

	res := types.ResolutionFor(req.Orientation)
	tl := timeline.Compile([]audio.NarratedScene{narrated})
	clip, err := p.deps.Renderer.SceneClip(ctx, tl.Scenes[0], res, job.ClipDir())
	if err != nil {
		return nil, err
	}
	srt, err := p.subtitle(ctx, job, clip, "replacement")
	if err != nil {
		return nil, err
	}
	if srt != "" {
		captioned := job.path("replacement.mp4")
		if err := p.deps.Renderer.Caption(ctx, clip, srt, captioned); err != nil {
			return nil, err
		}
		clip = captioned
	}

	scene := target
	scene.MediaURL = resolved.MediaURL
	prev := types.Script{Scenes: req.Scenes, Music: req.Music, Orientation: req.Orientation}
	plan, err := edit.Splice(req.SignedURL, prev, edit.NewScene{Scene: scene, ClipPath: clip, Duration: narrated.Audio.Duration})
	if err != nil {
		return nil, err
	}

	final := job.path("final.mp4")
	if err := p.deps.Renderer.Splice(ctx, plan, previous, res, final); err != nil {
		return nil, err
	}

	out := &Result{ID: job.ID, Script: plan.Script}
	if out.SignedURL, err = p.store(ctx, final, job.ID+".mp4"); err != nil {
		return nil, err
	}
	p.record(ctx, storage.Render{
		ID: job.ID, Kind: "edit", Title: fmt.Sprintf("edit of scene %d", idx),
		ObjectKey: job.ID + ".mp4", SignedURL: out.SignedURL,
		Duration: plan.Script.TotalSec, Script: plan.Script, ParentURL: req.SignedURL,
	})

	log.Info("edit finished", zap.Float64("duration", plan.Script.TotalSec), zap.Int("segments", len(plan.Segments)))
	return out, nil
}

// replacementScene turns the edited scene of a request into the raw form
// media resolution expects.
func replacementScene(idx int, s types.Scene) (script.RawScene, error) {
	raw := script.RawScene{
		Index:     idx,
		Kind:      s.Type,
		Narration: strings.TrimSpace(s.Script),
		Overlay:   s.TextOverlay,
	}
	switch {
	case s.Type == (types.Kind{}):
		return raw, fmt.Errorf("%w: edited scene has no type", pipeerr.ErrInvalidEditTarget)
	case s.Type.IsStock():
		raw.Query = strings.TrimSpace(s.Query)
		if raw.Query == "" {
			return raw, fmt.Errorf("%w: stock replacement needs a query", pipeerr.ErrInvalidEditTarget)
		}
	default:
		raw.MediaName = filepath.Base(strings.TrimSpace(s.Media))
		if s.Media == "" || raw.MediaName == "." || raw.MediaName == "/" {
			return raw, fmt.Errorf("%w: user replacement needs a media file", pipeerr.ErrInvalidEditTarget)
		}
	}
	return raw, nil
}

// subtitle transcribes the narration of video and writes an SRT next to it.
// It returns "" when nothing was recognized.
func (p *Pipeline) subtitle(ctx context.Context, job *Job, video, name string) (string, error) {
	pcm := job.path(name + ".raw")
	if err := p.deps.Renderer.ExtractNarration(ctx, video, pcm); err != nil {
		return "", err
	}
	words, err := p.deps.Transcriber.TranscribeFile(ctx, pcm)
	if err != nil {
		return "", err
	}
	segs := subtitles.SegmentWords(words, p.opts.WindowSec)
	p.log.Debug("subtitles segmented", zap.String("track", name), zap.Int("words", len(words)), zap.Int("segments", len(segs)))
	if len(segs) == 0 {
		return "", nil
	}

	srt := job.path(name + ".srt")
	if err := subtitles.WriteSRTFile(srt, segs, p.opts.SRT); err != nil {
		return "", pipeerr.Wrap("subtitles", pipeerr.NoScene, pipeerr.ErrRender, err)
	}
	return srt, nil
}

func (p *Pipeline) store(ctx context.Context, file, key string) (string, error) {
	if p.deps.Store == nil {
		return "", pipeerr.Wrap("publish", pipeerr.NoScene, pipeerr.ErrStorageUpload, errors.New("no storage backend configured"))
	}
	err := retry.Do(ctx, p.opts.Policy, p.log, "upload "+key, func(ctx context.Context) error {
		return p.deps.Store.Upload(ctx, file, key)
	})
	if err != nil {
		return "", pipeerr.Wrap("publish", pipeerr.NoScene, pipeerr.ErrStorageUpload, err)
	}

	var link string
	err = retry.Do(ctx, p.opts.Policy, p.log, "sign "+key, func(ctx context.Context) error {
		var err error
		link, err = p.deps.Store.SignedURL(ctx, key, p.opts.SignedURLExpiry)
		return err
	})
	if err != nil {
		return "", pipeerr.Wrap("publish", pipeerr.NoScene, pipeerr.ErrStorageUpload, err)
	}
	return link, nil
}

// record and publish run after the video is stored; their failures are logged only.
func (p *Pipeline) record(ctx context.Context, r storage.Render) {
	if p.deps.Ledger == nil {
		return
	}
	if err := p.deps.Ledger.Record(ctx, r); err != nil {
		p.log.Warn("failed to record render", zap.String("id", r.ID), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, file string, meta publish.Metadata) *publish.Result {
	if p.deps.Publisher == nil {
		return nil
	}
	res, err := p.deps.Publisher.Publish(ctx, file, meta)
	if err != nil {
		p.log.Warn("youtube publish failed", zap.Error(err))
		return nil
	}
	return res
}

func publishedScript(tl timeline.Timeline, doc *script.SceneScript) types.Script {
	out := types.Script{
		Scenes:      make([]types.Scene, len(tl.Scenes)),
		Music:       doc.Music,
		Orientation: doc.Orientation,
		TotalSec:    tl.Total,
	}
	for i, s := range tl.Scenes {
		out.Scenes[i] = types.Scene{
			Type:        s.Kind,
			Script:      s.Narration,
			MediaURL:    s.MediaURL,
			TextOverlay: s.Overlay,
			StartTime:   s.Start,
			EndTime:     s.End,
		}
	}
	return out
}

// fanOut runs fn over in with at most limit calls in flight. Results keep
// input order. The first error cancels the rest.
func fanOut[In, Out any](ctx context.Context, limit int, in []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(in))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range in {
		g.Go(func() error {
			v, err := fn(ctx, item)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
