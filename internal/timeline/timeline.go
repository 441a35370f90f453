// Package timeline chains per-scene narration durations into absolute times.
package timeline

import (
	"fmt"
	"math"

	"shortform-studio/internal/audio"
)

// TimedScene is a narrated scene placed on the timeline
type TimedScene struct {
	audio.NarratedScene
	Start float64
	End   float64
}

func (s TimedScene) Duration() float64 { return s.End - s.Start }

// Timeline is the authoritative placement of every scene. Anything that
// needs to know where scene k sits in the video reads it from here.
type Timeline struct {
	Scenes []TimedScene
	Total  float64
}

// Compile is a single left fold over the scenes in the order given:
// scene 0 starts at 0 and each scene starts where the previous one ended.
func Compile(scenes []audio.NarratedScene) Timeline {
	tl := Timeline{Scenes: make([]TimedScene, 0, len(scenes))}
	var t float64
	for _, s := range scenes {
		end := t + s.Audio.Duration
		tl.Scenes = append(tl.Scenes, TimedScene{NarratedScene: s, Start: t, End: end})
		t = end
	}
	tl.Total = t
	return tl
}

// Spans returns the [start, end) pairs of the timeline in order.
func (tl Timeline) Spans() [][2]float64 {
	out := make([][2]float64, len(tl.Scenes))
	for i, s := range tl.Scenes {
		out[i] = [2]float64{s.Start, s.End}
	}
	return out
}

const epsilon = 1e-9

// Validate checks contiguity and positive durations for a timeline built
// elsewhere, such as one decoded from a previously published script.
func Validate(spans [][2]float64) error {
	var prev float64
	for i, sp := range spans {
		start, end := sp[0], sp[1]
		if math.Abs(start-prev) > 1e-3 {
			return fmt.Errorf("scene %d starts at %.3f, previous scene ended at %.3f", i, start, prev)
		}
		if end-start <= epsilon {
			return fmt.Errorf("scene %d has non-positive duration (%.3f to %.3f)", i, start, end)
		}
		prev = end
	}
	return nil
}
