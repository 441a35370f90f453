package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shortform-studio/internal/config"
	"shortform-studio/internal/types"
)

// Profile picks the system prompt from what media the user supplied.
type Profile string

const (
	ProfileStock      Profile = "stock"
	ProfileMedia      Profile = "media"
	ProfileMediaStock Profile = "media+stock"
)

func ProfileFor(hasUserMedia, useStock bool) Profile {
	switch {
	case hasUserMedia && useStock:
		return ProfileMediaStock
	case hasUserMedia:
		return ProfileMedia
	}
	return ProfileStock
}

const formatRules = `You MUST respond with ONLY one JSON object, optionally inside a ` + "```json" + ` block.

The object has:
- "music": one of the music options listed below
- "scenes": a non-empty array. Each scene has:
  - "type": one of %s
  - "script": the narration spoken over the scene (1-3 sentences)
  - "query": a short stock-media search query (stock_* scenes only)
  - "media_path": the source of the user media file to show (user_* scenes only)
  - "text_overlay": {"content": "...", "font": "...", "position": "..."} or null

Keep the total narration close to the requested duration when read aloud at ~150 words per minute.`

var profileIntro = map[Profile]string{
	ProfileStock: `You are a short-form video scriptwriter. Every visual comes from a stock media library.`,
	ProfileMedia: `You are a short-form video scriptwriter. Every visual comes from the user's own media clips, described below.
Use each user clip at least once and never invent files that are not listed.`,
	ProfileMediaStock: `You are a short-form video scriptwriter. Build the video from the user's own media clips, described below,
and fill gaps with stock media. Never invent user files that are not listed.`,
}

var profileKinds = map[Profile]string{
	ProfileStock:      `"stock_video" | "stock_photo"`,
	ProfileMedia:      `"user_video" | "user_photo"`,
	ProfileMediaStock: `"stock_video" | "stock_photo" | "user_video" | "user_photo"`,
}

// SystemPrompt returns the profile's prompt with the allowed options appended.
// A file <dir>/<profile>.txt replaces the built-in wording when present.
func SystemPrompt(p Profile, dir string, opts config.OptionsConfig) (string, error) {
	var sb strings.Builder

	intro := profileIntro[p] + "\n\n" + fmt.Sprintf(formatRules, profileKinds[p])
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, string(p)+".txt"))
		switch {
		case err == nil:
			intro = string(data)
		case !os.IsNotExist(err):
			return "", fmt.Errorf("read profile %s: %w", p, err)
		}
	}
	sb.WriteString(intro)

	options, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	sb.WriteString("\nHere are some input options you can use:\n ")
	sb.Write(options)
	return sb.String(), nil
}

// MediaDescriptor tells the model what one uploaded file shows
type MediaDescriptor struct {
	Source string     `json:"source"`
	Form   types.Form `json:"form"`
	Desc   string     `json:"desc"`
}

// UserPrompt renders the brief and the media descriptors.
func UserPrompt(b types.Brief, media []MediaDescriptor) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("title: %s\n", b.Title))
	sb.WriteString(fmt.Sprintf("description: %s\n", b.Description))
	sb.WriteString(fmt.Sprintf("style: %s\n", b.Template))
	sb.WriteString(fmt.Sprintf("duration: %s\n", b.Duration))
	sb.WriteString(fmt.Sprintf("orientation: %s\n", b.Orientation))

	if len(media) > 0 {
		sb.WriteString("Media clips and AI descriptions:\n")
		for _, m := range media {
			sb.WriteString(fmt.Sprintf("- source: %s (%s) desc: %s\n", m.Source, m.Form, strings.TrimSpace(m.Desc)))
		}
	}
	return sb.String()
}
