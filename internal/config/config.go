package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shortform-studio/internal/retry"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Script    ScriptConfig    `yaml:"script"`
	Media     MediaConfig     `yaml:"media"`
	Audio     AudioConfig     `yaml:"audio"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Render    RenderConfig    `yaml:"render"`
	Storage   StorageConfig   `yaml:"storage"`
	Publish   PublishConfig   `yaml:"publish"`
	Workers   int             `yaml:"workers"`
	Calls     CallsConfig     `yaml:"calls"`
	Paths     PathsConfig     `yaml:"paths"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Options   OptionsConfig   `yaml:"options"`
	Log       LogConfig       `yaml:"log"`

	Secrets Secrets `yaml:"-"`
}

type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	MaxUploadMB     int    `yaml:"max_upload_mb"`
	AllowOrigins    string `yaml:"allow_origins"`
	RequestTimeoutS int    `yaml:"request_timeout_sec"`
}

type ScriptConfig struct {
	Provider string `yaml:"provider"` // gemini | groq
	Model    string `yaml:"model"`
	// Temperature is nil when unset; an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature"`
	ProfilesDir string   `yaml:"profiles_dir"`
	GroqURL     string   `yaml:"groq_url"`
	GeminiURL   string   `yaml:"gemini_url"` // empty uses the public endpoint
}

type MediaConfig struct {
	PexelsVideoURL   string `yaml:"pexels_video_url"`
	PexelsPhotoURL   string `yaml:"pexels_photo_url"`
	PreferredQuality string `yaml:"preferred_quality"`
	PerPage          int    `yaml:"per_page"`
}

type AudioConfig struct {
	Voice         string  `yaml:"voice"`
	LanguageCode  string  `yaml:"language_code"`
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	EmptySceneSec float64 `yaml:"empty_scene_sec"`
}

type SubtitlesConfig struct {
	WindowSec               float64 `yaml:"window_sec"`
	MaxChunkBytes           int     `yaml:"max_chunk_bytes"`
	RenormalizeChunkOffsets bool    `yaml:"renormalize_chunk_offsets"`
	LanguageCode            string  `yaml:"language_code"`
	WrapWidth               int     `yaml:"wrap_width"`
	Font                    string  `yaml:"font"`
	FontSize                int     `yaml:"font_size"`
	MinDisplaySec           float64 `yaml:"min_display_sec"`
}

type RenderConfig struct {
	FFmpeg      string  `yaml:"ffmpeg"`
	FFprobe     string  `yaml:"ffprobe"`
	FPS         int     `yaml:"fps"`
	MusicDir    string  `yaml:"music_dir"`
	FontsDir    string  `yaml:"fonts_dir"`
	MusicVolume float64 `yaml:"music_volume"`
	OverlaySize int     `yaml:"overlay_font_size"`
}

type StorageConfig struct {
	Backend          string `yaml:"backend"` // gcs | local
	Bucket           string `yaml:"bucket"`
	LocalDir         string `yaml:"local_dir"`
	PublicBaseURL    string `yaml:"public_base_url"`
	SignedURLMinutes int    `yaml:"signed_url_minutes"`
	Database         string `yaml:"database"`
}

type PublishConfig struct {
	YouTube YouTubeConfig `yaml:"youtube"`
}

type YouTubeConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Visibility      string `yaml:"visibility"`
	CategoryID      string `yaml:"category_id"`
	DefaultLanguage string `yaml:"default_language"`
	MadeForKids     bool   `yaml:"made_for_kids"`
}

type CallsConfig struct {
	TimeoutSec float64 `yaml:"timeout_sec"`
	Attempts   int     `yaml:"attempts"`
	BackoffSec float64 `yaml:"backoff_sec"`
}

type PathsConfig struct {
	WorkDir string `yaml:"work_dir"`
}

type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxAgeHours     int `yaml:"max_age_hours"`
}

// OptionsConfig is offered to the script model as the allowed choices.
type OptionsConfig struct {
	Music     []string `yaml:"music" json:"music"`
	Fonts     []string `yaml:"fonts" json:"fonts"`
	Positions []string `yaml:"positions" json:"positions"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Secrets come from the environment only, never from config.yaml.
type Secrets struct {
	GeminiAPIKey        string
	GroqAPIKey          string
	PexelsAPIKey        string
	SpeechAPIKey        string
	GoogleCredentials   string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string
}

// SecretsFromEnv reads every provider credential the pipeline knows about.
func SecretsFromEnv() Secrets {
	return Secrets{
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:          os.Getenv("GROQ_API_KEY"),
		PexelsAPIKey:        os.Getenv("PEXELS_API_KEY"),
		SpeechAPIKey:        os.Getenv("SPEECH_API_KEY"),
		GoogleCredentials:   os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
}

// Load reads config.yaml, applies defaults and attaches secrets from the environment
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Secrets = SecretsFromEnv()
	return cfg, nil
}

// Parse decodes YAML, fills defaults and validates. Secrets are left empty.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setString(&c.Server.Host, "0.0.0.0")
	setInt(&c.Server.Port, 8080)
	setInt(&c.Server.MaxUploadMB, 200)
	setString(&c.Server.AllowOrigins, "*")
	setInt(&c.Server.RequestTimeoutS, 900)

	setString(&c.Script.Provider, "gemini")
	setString(&c.Script.Model, "gemini-1.5-flash")
	setString(&c.Script.GroqURL, "https://api.groq.com/openai/v1/chat/completions")
	if c.Script.Temperature == nil {
		t := 0.7
		c.Script.Temperature = &t
	}

	setString(&c.Media.PexelsVideoURL, "https://api.pexels.com/videos/search")
	setString(&c.Media.PexelsPhotoURL, "https://api.pexels.com/v1/search")
	setString(&c.Media.PreferredQuality, "hd")
	setInt(&c.Media.PerPage, 1)

	setString(&c.Audio.Voice, "en-US-Studio-O")
	setString(&c.Audio.LanguageCode, "en-US")
	setInt(&c.Audio.SampleRate, 44100)
	setInt(&c.Audio.Channels, 2)
	setFloat(&c.Audio.EmptySceneSec, 2)

	setFloat(&c.Subtitles.WindowSec, 3)
	setInt(&c.Subtitles.MaxChunkBytes, 10*1024*1024-1000)
	setString(&c.Subtitles.LanguageCode, "en-US")
	setInt(&c.Subtitles.WrapWidth, 70)
	setString(&c.Subtitles.Font, "Trebuchet MS")
	setInt(&c.Subtitles.FontSize, 18)
	setFloat(&c.Subtitles.MinDisplaySec, 1)

	setString(&c.Render.FFmpeg, "ffmpeg")
	setString(&c.Render.FFprobe, "ffprobe")
	setInt(&c.Render.FPS, 25)
	setString(&c.Render.MusicDir, "music")
	setString(&c.Render.FontsDir, "fonts")
	setFloat(&c.Render.MusicVolume, 0.4)
	setInt(&c.Render.OverlaySize, 100)

	setString(&c.Storage.Backend, "local")
	setString(&c.Storage.LocalDir, "published")
	setInt(&c.Storage.SignedURLMinutes, 10)
	setString(&c.Storage.Database, "renders.db")

	setString(&c.Publish.YouTube.Visibility, "private")
	setString(&c.Publish.YouTube.CategoryID, "22")
	setString(&c.Publish.YouTube.DefaultLanguage, "en")

	setInt(&c.Workers, 4)
	setFloat(&c.Calls.TimeoutSec, 60)
	setInt(&c.Calls.Attempts, 3)
	setFloat(&c.Calls.BackoffSec, 2)

	setString(&c.Paths.WorkDir, "temp")
	setInt(&c.Cleanup.IntervalMinutes, 30)
	setInt(&c.Cleanup.MaxAgeHours, 6)

	setString(&c.Log.Level, "info")
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	switch {
	case len(c.Options.Music) == 0:
		return fmt.Errorf("config: options.music must list at least one track")
	case c.Subtitles.WindowSec <= 0:
		return fmt.Errorf("config: subtitles.window_sec must be positive")
	case c.Subtitles.MaxChunkBytes <= 0:
		return fmt.Errorf("config: subtitles.max_chunk_bytes must be positive")
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("config: audio.sample_rate must be positive")
	case c.Audio.EmptySceneSec*float64(c.Audio.SampleRate) < 1:
		return fmt.Errorf("config: audio.empty_scene_sec must cover at least one sample, got %v", c.Audio.EmptySceneSec)
	case c.Workers <= 0:
		return fmt.Errorf("config: workers must be positive")
	case c.Storage.Backend != "gcs" && c.Storage.Backend != "local":
		return fmt.Errorf("config: storage.backend must be gcs or local, got %q", c.Storage.Backend)
	case c.Storage.Backend == "gcs" && c.Storage.Bucket == "":
		return fmt.Errorf("config: storage.bucket is required for the gcs backend")
	case c.Script.Provider != "gemini" && c.Script.Provider != "groq":
		return fmt.Errorf("config: script.provider must be gemini or groq, got %q", c.Script.Provider)
	}
	return nil
}

// CallPolicy is the retry policy applied to every external call.
func (c *Config) CallPolicy() retry.Policy {
	return retry.Policy{
		Attempts: c.Calls.Attempts,
		Backoff:  seconds(c.Calls.BackoffSec),
		Timeout:  seconds(c.Calls.TimeoutSec),
	}
}

func (c *Config) SignedURLExpiry() time.Duration {
	return time.Duration(c.Storage.SignedURLMinutes) * time.Minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setFloat(p *float64, v float64) {
	if *p == 0 {
		*p = v
	}
}
