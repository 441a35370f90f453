package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/types"
)

// RawScene is a validated scene straight from the model: it names what to
// fetch (Query for stock kinds, MediaName for user kinds) but owns no media yet.
type RawScene struct {
	Index     int
	Kind      types.Kind
	Narration string
	Query     string
	MediaName string
	Overlay   *types.TextOverlay
}

// SceneScript is the validated document the rest of the pipeline works from.
type SceneScript struct {
	Scenes         []RawScene
	Music          string
	Orientation    string
	Resolution     types.Resolution
	TargetDuration string
}

// Validator turns untrusted model output into a SceneScript. It holds no
// state besides the music whitelist, so Parse is a pure function of its input.
type Validator struct {
	music []string
}

func NewValidator(musicWhitelist []string) *Validator {
	return &Validator{music: append([]string(nil), musicWhitelist...)}
}

// The language tag of a fence, if any, is ignored.
var fenced = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")

// sceneJSON is the loose shape the model is asked to produce
type sceneJSON struct {
	Type        string          `json:"type"`
	Script      string          `json:"script"`
	Narration   string          `json:"narration"`
	Query       string          `json:"query"`
	Media       string          `json:"media"`
	MediaPath   string          `json:"media_path"`
	Source      string          `json:"source"`
	TextOverlay json.RawMessage `json:"text_overlay"`
}

type scriptJSON struct {
	Scenes *[]sceneJSON `json:"scenes"`
	Music  *string      `json:"music"`
}

// Parse extracts the JSON document from raw (a fenced block if present,
// otherwise the whole text) and validates it.
func (v *Validator) Parse(raw string) (*SceneScript, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, malformed("%v", err)
	}

	if doc.Scenes == nil {
		return nil, malformed("missing required key %q", "scenes")
	}
	if doc.Music == nil {
		return nil, malformed("missing required key %q", "music")
	}
	if len(*doc.Scenes) == 0 {
		return nil, malformed("scenes is empty")
	}

	music := strings.TrimSpace(*doc.Music)
	if !lo.Contains(v.music, music) {
		return nil, malformed("music %q is not one of %v", music, v.music)
	}

	out := &SceneScript{Music: music, Scenes: make([]RawScene, 0, len(*doc.Scenes))}
	for i, s := range *doc.Scenes {
		scene, err := toRawScene(i, s)
		if err != nil {
			return nil, err
		}
		out.Scenes = append(out.Scenes, scene)
	}
	return out, nil
}

func decode(raw string) (*scriptJSON, error) {
	var candidates []string
	if m := fenced.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, strings.TrimSpace(raw))

	var lastErr error
	for _, c := range candidates {
		var doc scriptJSON
		dec := json.NewDecoder(bytes.NewReader([]byte(c)))
		if err := dec.Decode(&doc); err != nil {
			lastErr = err
			continue
		}
		if _, err := dec.Token(); err != io.EOF {
			lastErr = fmt.Errorf("unexpected text after the JSON document at offset %d", dec.InputOffset())
			continue
		}
		return &doc, nil
	}
	return nil, fmt.Errorf("no JSON document found: %w", lastErr)
}

func toRawScene(i int, s sceneJSON) (RawScene, error) {
	kind, err := types.ParseKind(s.Type)
	if err != nil {
		return RawScene{}, malformed("scene %d: %v", i, err)
	}

	scene := RawScene{
		Index:     i,
		Kind:      kind,
		Narration: strings.TrimSpace(lo.Ternary(s.Script != "", s.Script, s.Narration)),
	}

	if kind.IsStock() {
		scene.Query = strings.TrimSpace(s.Query)
		if scene.Query == "" {
			return RawScene{}, malformed("scene %d: %s scene has no query", i, kind)
		}
	} else {
		name, _ := lo.Coalesce(s.Media, s.MediaPath, s.Source)
		// The model echoes back whatever path it was shown; only the file name matters.
		name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
		if name == "" || name == "." || name == "/" {
			return RawScene{}, malformed("scene %d: %s scene names no media file", i, kind)
		}
		scene.MediaName = name
	}

	overlay, err := decodeOverlay(s.TextOverlay)
	if err != nil {
		return RawScene{}, malformed("scene %d: text_overlay: %v", i, err)
	}
	scene.Overlay = overlay
	return scene, nil
}

// decodeOverlay accepts an object, a bare string, or an empty value.
func decodeOverlay(raw json.RawMessage) (*types.TextOverlay, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("false")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var content string
		if err := json.Unmarshal(trimmed, &content); err != nil {
			return nil, err
		}
		if strings.TrimSpace(content) == "" {
			return nil, nil
		}
		return &types.TextOverlay{Content: content}, nil
	}

	var overlay types.TextOverlay
	if err := json.Unmarshal(trimmed, &overlay); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overlay.Content) == "" {
		return nil, nil
	}
	return &overlay, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", pipeerr.ErrMalformedScript, fmt.Sprintf(format, args...))
}
