// Package edit plans a re-cut of one scene of an already rendered video.
package edit

import (
	"fmt"

	"github.com/samber/lo"

	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/timeline"
	"shortform-studio/internal/types"
)

type SegmentKind string

const (
	KeepBefore  SegmentKind = "keep_before"
	Replacement SegmentKind = "replacement"
	KeepAfter   SegmentKind = "keep_after"
)

// PlanSegment is one piece of the new video. Keep segments are [From, To)
// of the previous render; the replacement segment is a freshly rendered clip.
type PlanSegment struct {
	Kind     SegmentKind
	From     float64
	To       float64
	ClipPath string
}

func (s PlanSegment) Duration() float64 { return s.To - s.From }

// Plan is the composition the renderer carries out, in order.
type Plan struct {
	PreviousURL string
	Index       int
	Segments    []PlanSegment
	// Script is the published script after the edit, with later scenes shifted.
	Script types.Script
}

// NewScene is the replacement after it went through media resolution and narration.
type NewScene struct {
	Scene    types.Scene
	ClipPath string
	Duration float64
}

// Target returns the index of the single scene flagged as edited.
func Target(scenes []types.Scene) (int, error) {
	n := lo.CountBy(scenes, func(s types.Scene) bool { return s.Edited })
	if n != 1 {
		return -1, fmt.Errorf("%w: %d scenes flagged as edited", pipeerr.ErrInvalidEditTarget, n)
	}
	_, idx, _ := lo.FindIndexOf(scenes, func(s types.Scene) bool { return s.Edited })
	return idx, nil
}

// Splice plans keep-before, the replacement and keep-after against the
// timeline of the previous script. Empty keep segments are left out, so an
// edit of the first or last scene yields two segments and a one-scene video one.
func Splice(previousURL string, prev types.Script, repl NewScene) (*Plan, error) {
	idx, err := Target(prev.Scenes)
	if err != nil {
		return nil, err
	}
	if repl.Duration <= 0 {
		return nil, fmt.Errorf("%w: replacement scene has no duration", pipeerr.ErrInvalidEditTarget)
	}

	spans := lo.Map(prev.Scenes, func(s types.Scene, _ int) [2]float64 { return [2]float64{s.StartTime, s.EndTime} })
	if err := timeline.Validate(spans); err != nil {
		return nil, fmt.Errorf("%w: previous timeline: %v", pipeerr.ErrInvalidEditTarget, err)
	}

	old := prev.Scenes[idx]
	total := prev.Scenes[len(prev.Scenes)-1].EndTime

	plan := &Plan{PreviousURL: previousURL, Index: idx}
	if old.StartTime > 0 {
		plan.Segments = append(plan.Segments, PlanSegment{Kind: KeepBefore, From: 0, To: old.StartTime})
	}
	plan.Segments = append(plan.Segments, PlanSegment{Kind: Replacement, From: 0, To: repl.Duration, ClipPath: repl.ClipPath})
	if total > old.EndTime {
		plan.Segments = append(plan.Segments, PlanSegment{Kind: KeepAfter, From: old.EndTime, To: total})
	}

	plan.Script = shift(prev, idx, repl)
	return plan, nil
}

func shift(prev types.Script, idx int, repl NewScene) types.Script {
	old := prev.Scenes[idx]
	delta := repl.Duration - (old.EndTime - old.StartTime)

	out := prev
	out.Scenes = make([]types.Scene, len(prev.Scenes))
	for i, s := range prev.Scenes {
		switch {
		case i == idx:
			s = repl.Scene
			s.StartTime = old.StartTime
			s.EndTime = old.StartTime + repl.Duration
			s.Query, s.Media = "", ""
		case i > idx:
			s.StartTime += delta
			s.EndTime += delta
		}
		s.Edited = false
		out.Scenes[i] = s
	}
	out.TotalSec = out.Scenes[len(out.Scenes)-1].EndTime
	return out
}
