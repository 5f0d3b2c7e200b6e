package preset

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/ivlev/compositor/internal/tree"
)

func sampleTree() *tree.Root {
	return &tree.Root{
		Config: tree.Config{Width: 1280, Height: 720, FPS: 30},
		Children: []*tree.Node{
			{
				ID:   "scene-1",
				Type: tree.Scene,
				Children: []*tree.Node{
					{
						ID:          "clip-1",
						Type:        tree.Atom,
						ComponentID: "VideoAtom",
						Data:        map[string]any{"src": "a.mp4", "tags": []any{"a"}},
					},
					{
						ID:          "text-1",
						Type:        tree.Atom,
						ComponentID: "TextAtom",
						Data:        map[string]any{"color": "blue", "size": 1},
					},
				},
			},
			{ID: "scene-2", Type: tree.Scene},
		},
	}
}

func uniqueIDs(t *testing.T, root *tree.Root) {
	t.Helper()
	seen := map[string]bool{}
	tree.Walk(root.Children, func(n *tree.Node) {
		if seen[n.ID] {
			t.Errorf("Duplicate id %q after patch", n.ID)
		}
		seen[n.ID] = true
	})
}

func TestFullPatchOnEmptyTree(t *testing.T) {
	d := 20.0
	patch := &Patch{
		Kind: Full,
		Output: Output{
			Children: []*tree.Node{{ID: "root-scene", Type: tree.Scene}},
			Config:   map[string]any{"width": 1920, "height": 1080, "duration": d},
			Style:    map[string]any{"background": "#111111"},
		},
	}

	got, err := Apply(&tree.Root{}, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(got.Children) != 1 || got.Children[0].ID != "root-scene" {
		t.Fatalf("Expected children from patch, got %+v", got.Children)
	}
	if got.Config.Width != 1920 || got.Config.Height != 1080 {
		t.Errorf("Expected config from patch, got %+v", got.Config)
	}
	if got.Config.Duration == nil || *got.Config.Duration != 20 {
		t.Errorf("Expected duration 20, got %v", got.Config.Duration)
	}
	if got.Style["background"] != "#111111" {
		t.Errorf("Expected style from patch, got %v", got.Style)
	}
}

func TestFullPatchReplacesTreeAndMergesConfig(t *testing.T) {
	patch := &Patch{
		Kind: Full,
		Output: Output{
			Children: []*tree.Node{{ID: "fresh", Type: tree.Scene}},
			Config:   map[string]any{"fps": 60},
		},
	}

	got, err := Apply(sampleTree(), patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(got.Children) != 1 || got.Children[0].ID != "fresh" {
		t.Errorf("Expected wholesale replacement, got %+v", got.Children)
	}
	// Patch wins on fps; untouched config keys survive.
	if got.Config.FPS != 60 || got.Config.Width != 1280 {
		t.Errorf("Expected fps 60 width 1280, got %+v", got.Config)
	}
}

func TestNonFullPatchOnEmptyTreeIsNoop(t *testing.T) {
	empty := &tree.Root{Config: tree.Config{FPS: 30}}
	patch := &Patch{Kind: Data, TargetID: "x", Output: Output{Data: map[string]any{"k": "v"}}}

	got, err := Apply(empty, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != empty {
		t.Error("Expected the input tree back unchanged")
	}
}

func TestDataPatchLocality(t *testing.T) {
	root := sampleTree()
	patch := &Patch{Kind: Data, TargetID: "text-1", Output: Output{Data: map[string]any{"color": "red"}}}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got.Children[0].Children[1].Data["color"] != "red" {
		t.Errorf("Expected replaced data, got %v", got.Children[0].Children[1].Data)
	}
	if _, ok := got.Children[0].Children[1].Data["size"]; ok {
		t.Error("Data patch must replace wholesale, size survived")
	}

	// Nodes off the patched path are the same structures.
	if got.Children[1] != root.Children[1] {
		t.Error("scene-2 was rebuilt")
	}
	if got.Children[0].Children[0] != root.Children[0].Children[0] {
		t.Error("clip-1 was rebuilt")
	}
	// The original tree is untouched.
	if root.Children[0].Children[1].Data["color"] != "blue" {
		t.Errorf("Input tree mutated: %v", root.Children[0].Children[1].Data)
	}
	uniqueIDs(t, got)
}

func TestChildrenPatchDeepMerge(t *testing.T) {
	root := sampleTree()
	patch := &Patch{
		Kind:     Children,
		TargetID: "clip-1",
		Output:   Output{Data: map[string]any{"tags": []any{"b"}}},
	}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	tags := got.Children[0].Children[0].Data["tags"].([]any)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("Expected tags [a b], got %v", tags)
	}
	if got.Children[0].Children[0].Data["src"] != "a.mp4" {
		t.Error("Unpatched data key lost")
	}
}

func TestChildrenPatchScalarOverwrite(t *testing.T) {
	root := sampleTree()
	patch := &Patch{
		Kind:     Children,
		TargetID: "text-1",
		Output:   Output{Data: map[string]any{"color": "red"}},
	}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	data := got.Children[0].Children[1].Data
	if data["color"] != "red" {
		t.Errorf("Expected color red, got %v", data["color"])
	}
	if data["size"] != 1 {
		t.Errorf("Expected size 1 kept, got %v", data["size"])
	}
}

func TestChildrenPatchAppends(t *testing.T) {
	root := sampleTree()
	patch := &Patch{
		Kind:     Children,
		TargetID: "scene-1",
		Output: Output{
			Children: []*tree.Node{
				{ID: "new-clip", Type: tree.Atom, ComponentID: "VideoAtom"},
				{Type: tree.Atom, ComponentID: "AudioAtom"}, // no id: one is assigned
			},
		},
	}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	kids := got.Children[0].Children
	if len(kids) != 4 {
		t.Fatalf("Expected 4 children after append, got %d", len(kids))
	}
	if kids[2].ID != "new-clip" {
		t.Errorf("Expected new-clip appended, got %s", kids[2].ID)
	}
	if kids[3].ID == "" {
		t.Error("Expected generated id for id-less child")
	}
	if len(root.Children[0].Children) != 2 {
		t.Error("Input tree mutated by append")
	}
	uniqueIDs(t, got)
}

func TestContextPatchReplacesWholesale(t *testing.T) {
	root := sampleTree()
	d := 3.0
	patch := &Patch{
		Kind:     Context,
		TargetID: "clip-1",
		Output:   Output{Context: &tree.Context{Timing: tree.Timing{Duration: &d}}},
	}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	clip := got.Children[0].Children[0]
	if clip.Duration() == nil || *clip.Duration() != 3 {
		t.Errorf("Expected duration 3, got %v", clip.Duration())
	}
}

func TestEffectsPatchCoercesScalar(t *testing.T) {
	root := sampleTree()
	patch := &Patch{
		Kind:     Effects,
		TargetID: "clip-1",
		Output:   Output{Effects: map[string]any{"type": "fade"}},
	}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	effects := got.Children[0].Children[0].Effects
	if len(effects) != 1 {
		t.Fatalf("Expected scalar coerced to one-element list, got %v", effects)
	}
	if effects[0].(map[string]any)["type"] != "fade" {
		t.Errorf("Expected fade effect, got %v", effects[0])
	}
}

func TestNoMatchFallsBackToFirstChild(t *testing.T) {
	root := sampleTree()
	patch := &Patch{Kind: Data, TargetID: "ghost", Output: Output{Data: map[string]any{"k": "v"}}}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got.Children[0].Data["k"] != "v" {
		t.Errorf("Expected fallback onto scene-1, got %v", got.Children[0].Data)
	}
	if got.Children[1] != root.Children[1] {
		t.Error("scene-2 rebuilt during fallback")
	}
}

func TestPatcherUsesInjectedLogger(t *testing.T) {
	root := sampleTree()
	patch := &Patch{Kind: Data, TargetID: "ghost", Output: Output{Data: map[string]any{"k": "v"}}}

	var buf bytes.Buffer
	pt := &Patcher{Logger: log.New(&buf, "", 0)}

	got, err := pt.Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got.Children[0].Data["k"] != "v" {
		t.Errorf("Expected fallback onto scene-1, got %v", got.Children[0].Data)
	}
	if !strings.Contains(buf.String(), "ghost") {
		t.Errorf("Expected fallback message in injected logger, got %q", buf.String())
	}
}

func TestPositionalTargetConvention(t *testing.T) {
	// Legacy transforms name the target via output.childrenData[0].id.
	root := sampleTree()
	patch := &Patch{
		Kind: Children,
		Output: Output{
			Children: []*tree.Node{{ID: "scene-2", Type: tree.Atom, ComponentID: "TextAtom"}},
		},
	}

	got, err := Apply(root, patch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// scene-2 both addresses the target and is appended to it.
	if len(got.Children[1].Children) != 1 {
		t.Errorf("Expected append on scene-2, got %+v", got.Children[1].Children)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	if _, err := Apply(sampleTree(), &Patch{Kind: "bogus"}); err == nil {
		t.Error("Expected error for unknown patch kind")
	}
}

func TestDeepMergeNested(t *testing.T) {
	base := map[string]any{
		"meta": map[string]any{"tags": []any{"a"}, "kind": "x"},
		"n":    1,
	}
	patch := map[string]any{
		"meta": map[string]any{"tags": []any{"b"}},
		"n":    2,
	}

	got := deepMerge(base, patch)

	meta := got["meta"].(map[string]any)
	tags := meta["tags"].([]any)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("Expected nested array concat, got %v", tags)
	}
	if meta["kind"] != "x" {
		t.Errorf("Expected untouched nested key kept, got %v", meta["kind"])
	}
	if got["n"] != 2 {
		t.Errorf("Expected scalar overwritten to 2, got %v", got["n"])
	}
	if base["n"] != 1 || len(base["meta"].(map[string]any)["tags"].([]any)) != 1 {
		t.Error("deepMerge mutated its input")
	}
}
