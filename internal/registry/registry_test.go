package registry

import (
	"testing"
)

func TestBuiltinComponents(t *testing.T) {
	r := Builtin()

	for _, id := range []string{"VideoAtom", "AudioAtom", "ImageAtom", "TextAtom", "SceneComponent", "LayoutComponent"} {
		if _, ok := r.Resolve(id); !ok {
			t.Errorf("Expected builtin component %s", id)
		}
	}

	if _, ok := r.Resolve("Unknown"); ok {
		t.Error("Expected miss for unknown component")
	}
}

func TestRegisterOverrides(t *testing.T) {
	r := Builtin()
	r.Register("VideoAtom", Component{Renderer: "custom-video"})

	c, ok := r.Resolve("VideoAtom")
	if !ok {
		t.Fatal("Component lost after override")
	}
	if c.Renderer != "custom-video" {
		t.Errorf("Expected custom-video, got %s", c.Renderer)
	}
}
