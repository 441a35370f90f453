// Package publish pushes finished videos to YouTube.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shortform-studio/internal/config"
	"shortform-studio/internal/logging"
)

// Metadata describes the upload
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// Result identifies the uploaded video
type Result struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
}

// YouTube uploads videos through the Data API v3
type YouTube struct {
	cfg  config.YouTubeConfig
	opts []option.ClientOption
	log  *zap.Logger
}

// NewYouTube authenticates with a long-lived refresh token. Extra client
// options are appended after the OAuth client.
func NewYouTube(ctx context.Context, cfg config.YouTubeConfig, secrets config.Secrets, log *zap.Logger, extra ...option.ClientOption) (*YouTube, error) {
	client, err := oauthClient(ctx, secrets)
	if err != nil {
		return nil, fmt.Errorf("youtube auth: %w", err)
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	return &YouTube{cfg: cfg, opts: opts, log: logging.OrNop(log).Named("publish")}, nil
}

// NewYouTubeWithOptions skips OAuth and builds the service from opts alone.
func NewYouTubeWithOptions(cfg config.YouTubeConfig, log *zap.Logger, opts ...option.ClientOption) *YouTube {
	return &YouTube{cfg: cfg, opts: opts, log: logging.OrNop(log).Named("publish")}
}

func (y *YouTube) Publish(ctx context.Context, videoFile string, meta Metadata) (*Result, error) {
	svc, err := youtube.NewService(ctx, y.opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           y.cfg.CategoryID,
			DefaultLanguage:      y.cfg.DefaultLanguage,
			DefaultAudioLanguage: y.cfg.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           y.cfg.Visibility,
			SelfDeclaredMadeForKids: y.cfg.MadeForKids,
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		y.log.Info("uploading to youtube",
			zap.String("title", meta.Title),
			zap.Float64("size_mb", float64(fi.Size())/1024/1024))
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}

	res := &Result{VideoID: uploaded.Id, URL: "https://www.youtube.com/watch?v=" + uploaded.Id}
	y.log.Info("uploaded to youtube", zap.String("video_id", res.VideoID))
	return res, nil
}

func oauthClient(ctx context.Context, s config.Secrets) (*http.Client, error) {
	if s.YouTubeClientID == "" || s.YouTubeClientSecret == "" || s.YouTubeRefreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     s.YouTubeClientID,
		ClientSecret: s.YouTubeClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: s.YouTubeRefreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}
