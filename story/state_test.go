package story

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/fableforge/storyflow/guardrail"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestReduceScalars(t *testing.T) {
	s := State{JobID: "j1", StoryTitle: "old"}

	s = Reduce(s, Patch{StoryTitle: strp("new"), InputOK: boolp(true)})
	if s.StoryTitle != "new" || !s.InputOK {
		t.Fatalf("state = %+v", s)
	}

	// An unset pointer leaves the previous value.
	s = Reduce(s, Patch{InputOK: boolp(false)})
	if s.StoryTitle != "new" {
		t.Fatalf("unset scalar overwritten: %+v", s)
	}
	if s.InputOK {
		t.Fatal("set scalar not applied")
	}
}

func TestReduceAppends(t *testing.T) {
	s := State{}
	s = Reduce(s, Patch{ImageURLs: []string{"a"}, Violations: []guardrail.Violation{{Code: "weapon"}}})
	s = Reduce(s, Patch{ImageURLs: []string{"b"}})

	if len(s.ImageURLs) != 2 || s.ImageURLs[0] != "a" || s.ImageURLs[1] != "b" {
		t.Fatalf("image urls = %v", s.ImageURLs)
	}
	if len(s.Violations) != 1 {
		t.Fatalf("violations = %+v", s.Violations)
	}
}

func TestReduceDoesNotAliasPrev(t *testing.T) {
	base := Reduce(State{}, Patch{ImageURLs: []string{"a"}})

	// Two divergent merges from the same base must not share a backing
	// array.
	left := Reduce(base, Patch{ImageURLs: []string{"left"}})
	right := Reduce(base, Patch{ImageURLs: []string{"right"}})

	if left.ImageURLs[1] != "left" || right.ImageURLs[1] != "right" {
		t.Fatalf("left = %v, right = %v", left.ImageURLs, right.ImageURLs)
	}
	if base.ImageURLs[0] != "a" || len(base.ImageURLs) != 1 {
		t.Fatalf("base mutated: %v", base.ImageURLs)
	}
}

// Fan-in readiness only guarantees that every patch arrived, not in
// which order, so any permutation of the same patch set must converge
// on the same multiset of appended values.
func TestReducePermutationInvariance(t *testing.T) {
	patches := []Patch{
		{ImageURLs: []string{"u0"}, ImageMeta: []MediaMeta{{Index: 0, URL: "u0"}}},
		{ImageURLs: []string{"u1"}, ImageMeta: []MediaMeta{{Index: 1, URL: "u1"}}},
		{VideoURLs: []string{"v0"}, VideoMeta: []MediaMeta{{Index: 0, URL: "v0"}}},
		{Violations: []guardrail.Violation{{Code: "weapon", Severity: guardrail.SeverityHard}}},
		{ImageFinal: []MediaBinding{{Index: 0, URL: "u0"}}},
	}

	apply := func(order []int) State {
		s := State{}
		for _, i := range order {
			s = Reduce(s, patches[i])
		}
		return s
	}

	reference := apply([]int{0, 1, 2, 3, 4})
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		order := rng.Perm(len(patches))
		got := apply(order)

		counts := func(s State) map[string]int {
			m := map[string]int{}
			for _, u := range s.ImageURLs {
				m["img:"+u]++
			}
			for _, u := range s.VideoURLs {
				m["vid:"+u]++
			}
			for _, v := range s.Violations {
				m["vio:"+v.Code]++
			}
			for _, b := range s.ImageFinal {
				m["fin:"+b.URL]++
			}
			return m
		}
		if !reflect.DeepEqual(counts(got), counts(reference)) {
			t.Fatalf("order %v diverged: %v vs %v", order, counts(got), counts(reference))
		}
	}
}

func TestMergeRulesValid(t *testing.T) {
	if err := MergeRules().Validate(); err != nil {
		t.Fatalf("merge rules: %v", err)
	}
	fields := MergeRules().AppendFields()
	want := map[string]bool{
		"image_urls": true, "video_urls": true, "image_meta": true,
		"video_meta": true, "violations": true, "image_final": true, "video_final": true,
	}
	if len(fields) != len(want) {
		t.Fatalf("append fields = %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Fatalf("unexpected append field %q", f)
		}
	}
}

func TestSortedBindings(t *testing.T) {
	bindings := []MediaBinding{
		{Index: 2, URL: "c"},
		{Index: 0, URL: "a-original", Pass: 0},
		{Index: 1, URL: "b"},
		{Index: 0, URL: "a-regenerated", Pass: 1},
	}

	got := sortedBindings(bindings)
	if len(got) != 3 {
		t.Fatalf("bindings = %+v", got)
	}
	if got[0].URL != "a-regenerated" || got[1].URL != "b" || got[2].URL != "c" {
		t.Fatalf("bindings = %+v, want index order with highest pass winning", got)
	}

	// The winner is pass-based, not position-based.
	reversed := []MediaBinding{bindings[3], bindings[1]}
	got = sortedBindings(reversed)
	if len(got) != 1 || got[0].URL != "a-regenerated" {
		t.Fatalf("bindings = %+v", got)
	}
}
