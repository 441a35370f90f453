package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Source says where a scene's visual asset comes from.
type Source string

// Form says whether a scene's visual asset is moving or still.
type Form string

const (
	SourceStock Source = "stock"
	SourceUser  Source = "user"

	FormVideo Form = "video"
	FormPhoto Form = "photo"
)

// Kind is the tagged scene variant, written as "<source>_<form>" on the wire.
type Kind struct {
	Source Source
	Form   Form
}

var (
	StockVideo = Kind{SourceStock, FormVideo}
	StockPhoto = Kind{SourceStock, FormPhoto}
	UserVideo  = Kind{SourceUser, FormVideo}
	UserPhoto  = Kind{SourceUser, FormPhoto}
)

// ParseKind accepts exactly stock_video, stock_photo, user_video and user_photo.
func ParseKind(s string) (Kind, error) {
	source, form, ok := strings.Cut(strings.TrimSpace(s), "_")
	if !ok {
		return Kind{}, fmt.Errorf("scene type %q is not <source>_<form>", s)
	}
	k := Kind{Source(source), Form(form)}
	switch k {
	case StockVideo, StockPhoto, UserVideo, UserPhoto:
		return k, nil
	}
	return Kind{}, fmt.Errorf("unknown scene type %q", s)
}

func (k Kind) String() string {
	return string(k.Source) + "_" + string(k.Form)
}

func (k Kind) IsStock() bool { return k.Source == SourceStock }
func (k Kind) IsVideo() bool { return k.Form == FormVideo }

func (k Kind) MarshalText() ([]byte, error) {
	if k == (Kind{}) {
		return nil, fmt.Errorf("empty scene type")
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TextOverlay is a caption burned over a whole scene. Passed to the renderer as is.
type TextOverlay struct {
	Content  string `json:"content" yaml:"content"`
	Font     string `json:"font,omitempty" yaml:"font"`
	Position string `json:"position,omitempty" yaml:"position"`
}

// Resolution is the output frame size in pixels
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// ResolutionFor maps an orientation to the output frame size.
// Anything other than portrait renders landscape.
func ResolutionFor(orientation string) Resolution {
	if orientation == OrientationPortrait {
		return Resolution{Width: 720, Height: 1280}
	}
	return Resolution{Width: 1280, Height: 720}
}

// OrientationFor names the orientation of a frame size.
func OrientationFor(res Resolution) string {
	if res.Height > res.Width {
		return OrientationPortrait
	}
	return OrientationLandscape
}

// Brief is what the user asks for
type Brief struct {
	Title         string   `json:"title" yaml:"title"`
	Description   string   `json:"description" yaml:"description"`
	Template      string   `json:"template" yaml:"template"`
	Duration      string   `json:"duration" yaml:"duration"`
	Orientation   string   `json:"orientation" yaml:"orientation"`
	UseStockMedia bool     `json:"use_stock_media" yaml:"use_stock_media"`
	MediaFiles    []string `json:"media_files,omitempty" yaml:"media_files"`
}

// Missing returns the names of required brief fields that are empty.
func (b Brief) Missing() []string {
	fields := []struct{ name, value string }{
		{"title", b.Title},
		{"description", b.Description},
		{"template", b.Template},
		{"duration", b.Duration},
		{"orientation", b.Orientation},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Scene is one scene of a published script.
// Query and Media are only read on edit requests, where they describe the replacement.
type Scene struct {
	Type        Kind         `json:"type"`
	Script      string       `json:"script"`
	MediaURL    string       `json:"media_url,omitempty"`
	Query       string       `json:"query,omitempty"`
	Media       string       `json:"media,omitempty"`
	TextOverlay *TextOverlay `json:"text_overlay,omitempty"`
	StartTime   float64      `json:"start_time"`
	EndTime     float64      `json:"end_time"`
	Edited      bool         `json:"edited,omitempty"`
}

// Script is the published scene script returned to callers and stored in the ledger
type Script struct {
	Scenes      []Scene `json:"scenes"`
	Music       string  `json:"music"`
	Orientation string  `json:"orientation,omitempty"`
	TotalSec    float64 `json:"total_sec"`
}

// EditRequest asks to re-cut one scene of a previously published video.
type EditRequest struct {
	SignedURL   string  `json:"signed_url"`
	Scenes      []Scene `json:"scenes"`
	Music       string  `json:"music"`
	Orientation string  `json:"orientation,omitempty"`
}

var (
	imageExts = map[string]string{
		".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
		".webp": "image/webp", ".heic": "image/heic",
	}
	videoExts = map[string]string{
		".mp4": "video/mp4", ".mov": "video/quicktime", ".mpeg": "video/mpeg", ".avi": "video/x-msvideo",
	}
)

// FormForFile classifies an uploaded file by extension and returns its MIME type.
func FormForFile(name string) (Form, string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if mime, ok := imageExts[ext]; ok {
		return FormPhoto, mime, true
	}
	if mime, ok := videoExts[ext]; ok {
		return FormVideo, mime, true
	}
	return "", "", false
}
