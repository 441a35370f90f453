package edit

import (
	"errors"
	"reflect"
	"testing"

	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/types"
)

func threeScenes(edited ...int) types.Script {
	s := types.Script{
		Music: "calm",
		Scenes: []types.Scene{
			{Type: types.StockVideo, Script: "one", StartTime: 0, EndTime: 2},
			{Type: types.StockPhoto, Script: "two", StartTime: 2, EndTime: 5},
			{Type: types.UserVideo, Script: "three", StartTime: 5, EndTime: 6.5},
		},
		TotalSec: 6.5,
	}
	for _, i := range edited {
		s.Scenes[i].Edited = true
	}
	return s
}

func TestSpliceMiddleScene(t *testing.T) {
	repl := NewScene{
		Scene:    types.Scene{Type: types.StockVideo, Script: "new two", MediaURL: "https://v.test/n.mp4", Query: "dogs"},
		ClipPath: "/tmp/replacement.mp4",
		Duration: 4,
	}
	plan, err := Splice("https://prev.test/v.mp4", threeScenes(1), repl)
	if err != nil {
		t.Fatalf("Splice failed: %v", err)
	}

	want := []PlanSegment{
		{Kind: KeepBefore, From: 0, To: 2},
		{Kind: Replacement, From: 0, To: 4, ClipPath: "/tmp/replacement.mp4"},
		{Kind: KeepAfter, From: 5, To: 6.5},
	}
	if !reflect.DeepEqual(plan.Segments, want) {
		t.Errorf("segments = %+v, want %+v", plan.Segments, want)
	}
	if plan.Index != 1 || plan.PreviousURL != "https://prev.test/v.mp4" {
		t.Errorf("unexpected plan header %+v", plan)
	}

	got := plan.Script
	if got.Scenes[1].Script != "new two" || got.Scenes[1].StartTime != 2 || got.Scenes[1].EndTime != 6 {
		t.Errorf("replacement scene not placed: %+v", got.Scenes[1])
	}
	if got.Scenes[1].Query != "" || got.Scenes[1].Edited {
		t.Errorf("replacement scene kept request-only fields: %+v", got.Scenes[1])
	}
	if got.Scenes[2].StartTime != 6 || got.Scenes[2].EndTime != 7.5 || got.TotalSec != 7.5 {
		t.Errorf("later scene not shifted: %+v total %v", got.Scenes[2], got.TotalSec)
	}
	if got.Scenes[0] != threeScenes().Scenes[0] {
		t.Errorf("earlier scene changed: %+v", got.Scenes[0])
	}
}

func TestSpliceEdgeScenesOmitEmptyKeeps(t *testing.T) {
	cases := []struct {
		name  string
		index int
		kinds []SegmentKind
	}{
		{"first", 0, []SegmentKind{Replacement, KeepAfter}},
		{"last", 2, []SegmentKind{KeepBefore, Replacement}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Splice("u", threeScenes(tc.index), NewScene{Duration: 1})
			if err != nil {
				t.Fatalf("Splice failed: %v", err)
			}
			var kinds []SegmentKind
			for _, s := range plan.Segments {
				kinds = append(kinds, s.Kind)
			}
			if !reflect.DeepEqual(kinds, tc.kinds) {
				t.Errorf("kinds = %v, want %v", kinds, tc.kinds)
			}
		})
	}
}

func TestSpliceRejectsBadTargets(t *testing.T) {
	cases := []struct {
		name   string
		script types.Script
		repl   NewScene
	}{
		{"none edited", threeScenes(), NewScene{Duration: 1}},
		{"two edited", threeScenes(0, 2), NewScene{Duration: 1}},
		{"no scenes", types.Script{}, NewScene{Duration: 1}},
		{"zero duration replacement", threeScenes(1), NewScene{}},
		{"gapped previous timeline", func() types.Script {
			s := threeScenes(1)
			s.Scenes[2].StartTime = 5.5
			return s
		}(), NewScene{Duration: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Splice("u", tc.script, tc.repl)
			if !errors.Is(err, pipeerr.ErrInvalidEditTarget) {
				t.Fatalf("expected ErrInvalidEditTarget, got %v", err)
			}
		})
	}
}

func TestTarget(t *testing.T) {
	idx, err := Target(threeScenes(2).Scenes)
	if err != nil || idx != 2 {
		t.Fatalf("Target() = %d, %v", idx, err)
	}
}
