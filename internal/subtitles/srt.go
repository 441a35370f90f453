package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// SRTOptions controls how segments are shown, not when they start.
type SRTOptions struct {
	WrapWidth     int
	MinDisplaySec float64
}

// WriteSRT writes segments as lowercased, wrapped SRT cues. A cue shorter
// than MinDisplaySec is held for that long, but never past the next cue.
func WriteSRT(w io.Writer, segs []Segment, opts SRTOptions) error {
	bw := bufio.NewWriter(w)
	for i, s := range segs {
		end := s.End()
		if s.Duration < opts.MinDisplaySec {
			end = s.Start + opts.MinDisplaySec
		}
		if i+1 < len(segs) && end > segs[i+1].Start {
			end = max(segs[i+1].Start, s.End())
		}

		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTime(s.Start), srtTime(end), Wrap(strings.ToLower(strings.TrimSpace(s.Text)), opts.WrapWidth))
	}
	return bw.Flush()
}

// WriteSRTFile writes the cues to path.
func WriteSRTFile(path string, segs []Segment, opts SRTOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSRT(f, segs, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func srtTime(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Wrap breaks text into lines of at most width characters at word
// boundaries. A single word longer than width gets its own line.
func Wrap(text string, width int) string {
	words := strings.Fields(text)
	if width <= 0 || len(words) == 0 {
		return strings.Join(words, " ")
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}
