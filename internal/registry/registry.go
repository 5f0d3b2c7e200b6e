// Package registry maps symbolic component ids to renderer bindings and
// default data. The duration resolver and the patch engine never consult
// it; only the assembler does, to fill defaults before resolution.
package registry

import (
	"sync"
)

// Component describes an externally-rendered component: the renderer the
// external engine should use and the default payload a bare node of this
// component starts with.
type Component struct {
	Renderer    string
	DefaultData map[string]any
}

// Registry is a concurrency-safe componentId lookup table.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register binds a component id, replacing any previous binding.
func (r *Registry) Register(id string, c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[id] = c
}

// Resolve looks up a component id.
func (r *Registry) Resolve(id string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// Builtin returns a registry preloaded with the stock components.
func Builtin() *Registry {
	r := New()
	r.Register("VideoAtom", Component{
		Renderer:    "video",
		DefaultData: map[string]any{"playbackRate": 1.0, "startFrom": 0.0},
	})
	r.Register("AudioAtom", Component{
		Renderer:    "audio",
		DefaultData: map[string]any{"playbackRate": 1.0, "startFrom": 0.0, "volume": 1.0},
	})
	r.Register("ImageAtom", Component{
		Renderer:    "image",
		DefaultData: map[string]any{"fit": "contain"},
	})
	r.Register("TextAtom", Component{
		Renderer:    "text",
		DefaultData: map[string]any{"fontSize": 48.0, "color": "#ffffff"},
	})
	r.Register("SceneComponent", Component{Renderer: "scene"})
	r.Register("LayoutComponent", Component{Renderer: "layout"})
	return r
}
