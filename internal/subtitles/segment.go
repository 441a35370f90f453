// Package subtitles turns a word-level transcript of the mixed narration into
// fixed-window caption segments and writes them as SRT.
package subtitles

import "strings"

// Word is one recognized word and its offset from the start of the track
type Word struct {
	Text   string  `json:"text"`
	Offset float64 `json:"offset"`
}

// Segment is one caption window
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func (s Segment) End() float64 { return s.Start + s.Duration }

// SegmentWords groups words into windows of window seconds. A window closes, with
// duration exactly window, when the next word's offset is at least window past
// the window start; that word opens the next window. The last window lasts
// from its start to the offset of its last word and may be zero long.
// No words gives no segments.
func SegmentWords(words []Word, window float64) []Segment {
	if len(words) == 0 || window <= 0 {
		return nil
	}

	var (
		out   []Segment
		buf   []string
		start float64
		last  float64
	)
	for _, w := range words {
		if w.Offset-start >= window {
			// A leading silence longer than the window closes nothing.
			if len(buf) > 0 {
				out = append(out, Segment{Text: strings.Join(buf, " "), Start: start, Duration: window})
			}
			start = w.Offset
			buf = buf[:0]
		}
		buf = append(buf, w.Text)
		last = w.Offset
	}

	if len(buf) > 0 {
		out = append(out, Segment{Text: strings.Join(buf, " "), Start: start, Duration: max(0, last-start)})
	}
	return out
}
