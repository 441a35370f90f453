package publish

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"shortform-studio/internal/types"
)

const (
	titleMaxChars       = 100
	descriptionMaxChars = 5000
	maxTags             = 30
	chapterTextChars    = 60
)

// MetadataFor builds upload metadata from the brief and the published
// script. Scene start times become description chapters.
func MetadataFor(brief types.Brief, script types.Script) Metadata {
	title := strings.TrimSpace(brief.Title)
	if len([]rune(title)) > titleMaxChars {
		title = string([]rune(title)[:titleMaxChars-3]) + "..."
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(brief.Description))
	if len(script.Scenes) > 1 {
		sb.WriteString("\n\n")
		for _, s := range script.Scenes {
			fmt.Fprintf(&sb, "%s %s\n", chapterTime(s.StartTime), chapterText(s.Script))
		}
	}
	desc := strings.TrimSpace(sb.String())
	if len(desc) > descriptionMaxChars {
		desc = desc[:descriptionMaxChars]
	}

	return Metadata{Title: title, Description: desc, Tags: tagsFor(brief)}
}

func chapterTime(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func chapterText(narration string) string {
	t := strings.Join(strings.Fields(narration), " ")
	if t == "" {
		return "..."
	}
	if r := []rune(t); len(r) > chapterTextChars {
		return string(r[:chapterTextChars-3]) + "..."
	}
	return t
}

// tagsFor keeps the distinct title words longer than three letters, then the style.
func tagsFor(brief types.Brief) []string {
	words := strings.FieldsFunc(strings.ToLower(brief.Title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tags := lo.Filter(words, func(w string, _ int) bool { return len([]rune(w)) > 3 })
	if style := strings.ToLower(strings.TrimSpace(brief.Template)); style != "" {
		tags = append(tags, style)
	}
	tags = append(tags, "shorts")
	tags = lo.Uniq(tags)
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}
