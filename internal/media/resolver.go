// Package media turns each scene's query or uploaded file name into a local
// file the renderer can read plus a URL the caller can retrieve.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shortform-studio/internal/logging"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/retry"
	"shortform-studio/internal/script"
	"shortform-studio/internal/types"
)

// VideoFile is one encoding of a stock video
type VideoFile struct {
	Quality string
	Link    string
	Width   int
	Height  int
}

// Candidate is one stock search hit. Video hits carry Files, photo hits carry
// Variants keyed by size name ("portrait", "landscape", "original", ...).
type Candidate struct {
	ID       string
	Files    []VideoFile
	Variants map[string]string
}

type Searcher interface {
	Search(ctx context.Context, query, orientation string, form types.Form) ([]Candidate, error)
}

type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Storage is the durable store user media is published to.
type Storage interface {
	Upload(ctx context.Context, localPath, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ResolvedScene owns a local media file. The search query is gone.
type ResolvedScene struct {
	Index     int
	Kind      types.Kind
	Narration string
	Overlay   *types.TextOverlay
	LocalPath string
	MediaURL  string
}

// Request is the per-request context shared by every scene of one run.
type Request struct {
	Orientation string
	MediaDir    string // uploaded files live here and stock downloads land here
}

type Options struct {
	PreferredQuality string
	SignedURLExpiry  time.Duration
	Policy           retry.Policy
}

// Resolver fetches stock assets and publishes user assets
type Resolver struct {
	search   Searcher
	download Downloader
	store    Storage
	opts     Options
	log      *zap.Logger
}

func NewResolver(search Searcher, download Downloader, store Storage, opts Options, log *zap.Logger) *Resolver {
	return &Resolver{
		search:   search,
		download: download,
		store:    store,
		opts:     opts,
		log:      logging.OrNop(log).Named("media"),
	}
}

// Resolve is safe to call concurrently for different scenes of one request.
func (r *Resolver) Resolve(ctx context.Context, scene script.RawScene, req Request) (ResolvedScene, error) {
	out := ResolvedScene{
		Index:     scene.Index,
		Kind:      scene.Kind,
		Narration: scene.Narration,
		Overlay:   scene.Overlay,
	}

	var err error
	if scene.Kind.IsStock() {
		out.LocalPath, out.MediaURL, err = r.resolveStock(ctx, scene, req)
	} else {
		out.LocalPath, out.MediaURL, err = r.resolveUser(ctx, scene, req)
	}
	if err != nil {
		return ResolvedScene{}, err
	}

	r.log.Info("scene media ready",
		zap.Int("scene", scene.Index),
		zap.String("kind", scene.Kind.String()),
		zap.String("file", filepath.Base(out.LocalPath)))
	return out, nil
}

func (r *Resolver) resolveStock(ctx context.Context, scene script.RawScene, req Request) (string, string, error) {
	fail := func(err error) (string, string, error) {
		return "", "", pipeerr.Wrap("media", scene.Index, pipeerr.ErrMediaFetch, err)
	}
	if r.search == nil {
		return fail(errors.New("no stock search provider configured"))
	}

	var candidates []Candidate
	err := retry.Do(ctx, r.opts.Policy, r.log, "search "+scene.Query, func(ctx context.Context) error {
		var err error
		candidates, err = r.search.Search(ctx, scene.Query, req.Orientation, scene.Kind.Form)
		return err
	})
	if err != nil {
		return fail(err)
	}

	link, err := SelectAsset(scene.Kind.Form, candidates, r.opts.PreferredQuality, req.Orientation)
	if err != nil {
		return fail(fmt.Errorf("query %q: %w", scene.Query, err))
	}

	dest := filepath.Join(req.MediaDir, fmt.Sprintf("scene_%03d%s", scene.Index, extFor(link, scene.Kind.Form)))
	err = retry.Do(ctx, r.opts.Policy, r.log, "download scene media", func(ctx context.Context) error {
		return r.download.Download(ctx, link, dest)
	})
	if err != nil {
		return fail(err)
	}
	return dest, link, nil
}

func (r *Resolver) resolveUser(ctx context.Context, scene script.RawScene, req Request) (string, string, error) {
	local := filepath.Join(req.MediaDir, scene.MediaName)
	if _, err := os.Stat(local); err != nil {
		return "", "", pipeerr.Wrap("media", scene.Index, pipeerr.ErrMediaFetch, fmt.Errorf("user media %q: %w", scene.MediaName, err))
	}

	fail := func(err error) (string, string, error) {
		return "", "", pipeerr.Wrap("media", scene.Index, pipeerr.ErrStorageUpload, err)
	}
	if r.store == nil {
		return fail(errors.New("no storage backend configured"))
	}

	key := uuid.NewString() + strings.ToLower(filepath.Ext(scene.MediaName))
	err := retry.Do(ctx, r.opts.Policy, r.log, "upload "+scene.MediaName, func(ctx context.Context) error {
		return r.store.Upload(ctx, local, key)
	})
	if err != nil {
		return fail(err)
	}

	var link string
	err = retry.Do(ctx, r.opts.Policy, r.log, "sign "+key, func(ctx context.Context) error {
		var err error
		link, err = r.store.SignedURL(ctx, key, r.opts.SignedURLExpiry)
		return err
	})
	if err != nil {
		return fail(err)
	}
	return local, link, nil
}

var errNoCandidates = errors.New("stock search returned no candidates")

// SelectAsset picks the asset to download from the search hits. Videos use
// the first file of the preferred quality, falling back to the first file of
// the first hit. Photos use the variant named after the orientation, falling
// back to the original.
func SelectAsset(form types.Form, candidates []Candidate, preferredQuality, orientation string) (string, error) {
	if len(candidates) == 0 {
		return "", errNoCandidates
	}

	if form == types.FormVideo {
		for _, c := range candidates {
			for _, f := range c.Files {
				if f.Link != "" && strings.EqualFold(f.Quality, preferredQuality) {
					return f.Link, nil
				}
			}
		}
		for _, c := range candidates {
			for _, f := range c.Files {
				if f.Link != "" {
					return f.Link, nil
				}
			}
		}
		return "", errors.New("stock video has no downloadable files")
	}

	for _, c := range candidates {
		for _, name := range []string{orientation, "original"} {
			if link := c.Variants[name]; link != "" {
				return link, nil
			}
		}
	}
	return "", fmt.Errorf("stock photo has no %q or original variant", orientation)
}

func extFor(link string, form types.Form) string {
	if u, err := url.Parse(link); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if form == types.FormVideo {
		return ".mp4"
	}
	return ".jpg"
}
