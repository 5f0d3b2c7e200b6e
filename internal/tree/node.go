package tree

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeType tags the variant of a renderable node.
type NodeType string

const (
	Atom   NodeType = "atom"
	Layout NodeType = "layout"
	Scene  NodeType = "scene"
	Effect NodeType = "effect"
)

// Reserved fitDurationTo forms that never name another node.
const (
	FitThis = "this"
	FitFill = "fill"
)

// FitRef is a fitDurationTo reference. Documents may write it as a single
// string or as a list of ids; both forms unmarshal into the same slice.
type FitRef []string

// IsZero reports whether no reference is set.
func (f FitRef) IsZero() bool {
	return len(f) == 0
}

// Targets returns the ids the reference actually points at: reserved forms
// ("this", "fill") and the owning node's own id are dropped.
func (f FitRef) Targets(selfID string) []string {
	var out []string
	for _, id := range f {
		if id == FitThis || id == FitFill || id == "" || id == selfID {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (f *FitRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*f = FitRef{s}
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := value.Decode(&ids); err != nil {
			return err
		}
		*f = FitRef(ids)
		return nil
	}
	return fmt.Errorf("fitDurationTo: ожидается строка или список, получено %v", value.Kind)
}

func (f FitRef) MarshalYAML() (interface{}, error) {
	switch len(f) {
	case 0:
		return nil, nil
	case 1:
		return f[0], nil
	}
	return []string(f), nil
}

func (f *FitRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FitRef{s}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("fitDurationTo: %w", err)
	}
	*f = FitRef(ids)
	return nil
}

func (f FitRef) MarshalJSON() ([]byte, error) {
	if len(f) == 1 {
		return json.Marshal(f[0])
	}
	return json.Marshal([]string(f))
}

// Timing carries the resolved or declared playback length of a node.
// A nil Duration means "unresolved", which is distinct from zero.
type Timing struct {
	Duration         *float64 `yaml:"duration,omitempty" json:"duration,omitempty" mapstructure:"duration"`
	DurationInFrames *int     `yaml:"durationInFrames,omitempty" json:"durationInFrames,omitempty" mapstructure:"durationInFrames"`
	FitDurationTo    FitRef   `yaml:"fitDurationTo,omitempty" json:"fitDurationTo,omitempty" mapstructure:"fitDurationTo"`
}

// Context holds per-node hints consumed by this engine (timing) and by the
// external renderer (boundaries, opaque here).
type Context struct {
	Timing     Timing         `yaml:"timing,omitempty" json:"timing,omitempty" mapstructure:"timing"`
	Boundaries map[string]any `yaml:"boundaries,omitempty" json:"boundaries,omitempty" mapstructure:"boundaries"`
}

// Node is the single recursive entity of a composition: a media atom, a
// layout container, a scene or a visual effect. Children are exclusively
// owned; cross-references are string ids only.
type Node struct {
	ID          string         `yaml:"id" json:"id" mapstructure:"id"`
	Type        NodeType       `yaml:"type" json:"type" mapstructure:"type"`
	ComponentID string         `yaml:"componentId" json:"componentId" mapstructure:"componentId"`
	Data        map[string]any `yaml:"data,omitempty" json:"data,omitempty" mapstructure:"data"`
	Context     Context        `yaml:"context,omitempty" json:"context,omitempty" mapstructure:"context"`
	Effects     []any          `yaml:"effects,omitempty" json:"effects,omitempty" mapstructure:"effects"`
	Children    []*Node        `yaml:"childrenData,omitempty" json:"childrenData,omitempty" mapstructure:"childrenData"`
}

// Duration returns the settled duration or nil when unresolved.
func (n *Node) Duration() *float64 {
	return n.Context.Timing.Duration
}

// SetDuration records a settled duration on the node's own timing.
func (n *Node) SetDuration(seconds float64) {
	n.Context.Timing.Duration = &seconds
}

// Config is the render configuration of a composition root.
type Config struct {
	Width         int      `yaml:"width,omitempty" json:"width,omitempty" mapstructure:"width"`
	Height        int      `yaml:"height,omitempty" json:"height,omitempty" mapstructure:"height"`
	FPS           int      `yaml:"fps,omitempty" json:"fps,omitempty" mapstructure:"fps"`
	Duration      *float64 `yaml:"duration,omitempty" json:"duration,omitempty" mapstructure:"duration"`
	FitDurationTo FitRef   `yaml:"fitDurationTo,omitempty" json:"fitDurationTo,omitempty" mapstructure:"fitDurationTo"`
}

// Root is the serialized composition document handed to the renderer.
type Root struct {
	Children []*Node        `yaml:"childrenData" json:"childrenData"`
	Style    map[string]any `yaml:"style,omitempty" json:"style,omitempty"`
	Config   Config         `yaml:"config" json:"config"`
}

// Clone returns a deep copy sharing nothing with the receiver.
func (r *Root) Clone() *Root {
	if r == nil {
		return nil
	}
	out := &Root{
		Style:  cloneMap(r.Style),
		Config: r.Config,
	}
	if r.Config.Duration != nil {
		d := *r.Config.Duration
		out.Config.Duration = &d
	}
	out.Config.FitDurationTo = append(FitRef(nil), r.Config.FitDurationTo...)
	for _, c := range r.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		ID:          n.ID,
		Type:        n.Type,
		ComponentID: n.ComponentID,
		Data:        cloneMap(n.Data),
		Effects:     cloneSlice(n.Effects),
	}
	out.Context.Boundaries = cloneMap(n.Context.Boundaries)
	out.Context.Timing.FitDurationTo = append(FitRef(nil), n.Context.Timing.FitDurationTo...)
	if d := n.Context.Timing.Duration; d != nil {
		v := *d
		out.Context.Timing.Duration = &v
	}
	if fr := n.Context.Timing.DurationInFrames; fr != nil {
		v := *fr
		out.Context.Timing.DurationInFrames = &v
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	if s == nil {
		return nil
	}
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		return cloneSlice(t)
	default:
		return v
	}
}

// Walk calls fn for every node of the forest in pre-order, document order.
func Walk(forest []*Node, fn func(*Node)) {
	for _, n := range forest {
		fn(n)
		Walk(n.Children, fn)
	}
}
