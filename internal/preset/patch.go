// Package preset applies typed partial mutations onto a composition tree.
// A patch targets one node by id; everything else in the tree survives
// structurally untouched. Patches are ephemeral and never persisted.
package preset

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ivlev/compositor/internal/match"
	"github.com/ivlev/compositor/internal/tree"
)

// Kind declares how a patch output merges into the tree.
type Kind string

const (
	Full     Kind = "full"
	Children Kind = "children"
	Data     Kind = "data"
	Context  Kind = "context"
	Effects  Kind = "effects"
)

func (k Kind) valid() bool {
	switch k {
	case Full, Children, Data, Context, Effects:
		return true
	}
	return false
}

// Output is the payload a preset transform produced. Which fields matter
// depends on the patch kind.
type Output struct {
	ID       string         `mapstructure:"id"`
	Children []*tree.Node   `mapstructure:"childrenData"`
	Data     map[string]any `mapstructure:"data"`
	Context  *tree.Context  `mapstructure:"context"`
	Effects  any            `mapstructure:"effects"`
	Config   map[string]any `mapstructure:"config"`
	Style    map[string]any `mapstructure:"style"`
}

// Patch is one typed mutation. TargetID names the node to patch; when empty
// the id of the first output child is used (legacy positional convention).
type Patch struct {
	Kind     Kind
	TargetID string
	Output   Output
}

// MalformedError marks a preset whose transform failed or returned a shape
// inconsistent with its kind. Callers skip the preset and keep prior state.
type MalformedError struct {
	PresetID string
	Err      error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("preset %s: %v", e.PresetID, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Patcher applies patches onto composition trees. Logger, when set,
// receives the fallback messages; a zero Patcher logs via log.Default().
type Patcher struct {
	Logger *log.Logger
}

// Apply merges the patch into root with the default logger.
func Apply(root *tree.Root, p *Patch) (*tree.Root, error) {
	return (&Patcher{}).Apply(root, p)
}

// Apply merges the patch into root and returns the resulting tree. The
// input is never mutated: only the path from root to the patched node is
// rebuilt, every other node is the same structure. Apply never probes
// media and never errors on a missing target — it falls back as the
// editing flow expects.
func (pt *Patcher) Apply(root *tree.Root, p *Patch) (*tree.Root, error) {
	if p == nil || !p.Kind.valid() {
		return nil, fmt.Errorf("patch: неизвестный тип %q", kindOf(p))
	}
	if root == nil {
		root = &tree.Root{}
	}

	if p.Kind == Full {
		return applyFull(root, p), nil
	}

	// On an empty tree only a full patch has effect.
	if len(root.Children) == 0 {
		return root, nil
	}

	targetID := p.TargetID
	if targetID == "" && len(p.Output.Children) > 0 {
		targetID = p.Output.Children[0].ID
	}

	out := &tree.Root{Style: root.Style, Config: root.Config}
	if targetID == "" || match.First(root.Children, targetID) == nil {
		// Defensive fallback: no match on a non-empty tree patches the
		// first top-level child.
		pt.logf("[!] Патч %s: узел %q не найден, применяется к первому узлу", p.Kind, targetID)
		out.Children = append([]*tree.Node{}, root.Children...)
		out.Children[0] = mergeNode(root.Children[0], p)
		return out, nil
	}

	out.Children, _ = spliceFirst(root.Children, targetID, func(n *tree.Node) *tree.Node {
		return mergeNode(n, p)
	})

	return out, nil
}

func (pt *Patcher) logf(format string, args ...any) {
	l := pt.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

func kindOf(p *Patch) Kind {
	if p == nil {
		return ""
	}
	return p.Kind
}

func applyFull(root *tree.Root, p *Patch) *tree.Root {
	out := &tree.Root{
		Children: ensureIDs(p.Output.Children),
		Style:    shallowMerge(root.Style, p.Output.Style),
		Config:   mergeConfig(root.Config, p.Output.Config),
	}
	return out
}

// spliceFirst rebuilds the path from the forest roots to the first node in
// document order matching id, applying fn to that node. Untouched subtrees
// are shared, not copied.
func spliceFirst(nodes []*tree.Node, id string, fn func(*tree.Node) *tree.Node) ([]*tree.Node, bool) {
	for i, n := range nodes {
		if n.ID == id && id != "" {
			out := append([]*tree.Node{}, nodes...)
			out[i] = fn(n)
			return out, true
		}
		if kids, ok := spliceFirst(n.Children, id, fn); ok {
			out := append([]*tree.Node{}, nodes...)
			cp := *n
			cp.Children = kids
			out[i] = &cp
			return out, true
		}
	}
	return nodes, false
}

// mergeNode returns a shallow copy of n with the patch merged in per kind.
func mergeNode(n *tree.Node, p *Patch) *tree.Node {
	cp := *n

	switch p.Kind {
	case Children:
		if len(p.Output.Children) > 0 {
			kids := append([]*tree.Node{}, n.Children...)
			cp.Children = append(kids, ensureIDs(p.Output.Children)...)
		}
		if len(p.Output.Data) > 0 {
			cp.Data = deepMerge(n.Data, p.Output.Data)
		}
	case Data:
		cp.Data = p.Output.Data
	case Context:
		if p.Output.Context != nil {
			cp.Context = *p.Output.Context
		} else {
			cp.Context = tree.Context{}
		}
	case Effects:
		cp.Effects = coerceEffects(p.Output.Effects)
	}

	return &cp
}

// coerceEffects accepts a list or a bare value; a bare value becomes a
// one-element list.
func coerceEffects(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// ensureIDs gives every patched-in node without an id a generated one, so
// the id-uniqueness invariant survives sloppy transforms. Existing ids are
// the preset author's responsibility.
func ensureIDs(nodes []*tree.Node) []*tree.Node {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		ensureIDs(n.Children)
	}
	return nodes
}

func shallowMerge(base, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func mergeConfig(base tree.Config, patch map[string]any) tree.Config {
	if len(patch) == 0 {
		return base
	}

	out := base
	if w, ok := asFloat(patch["width"]); ok {
		out.Width = int(w)
	}
	if h, ok := asFloat(patch["height"]); ok {
		out.Height = int(h)
	}
	if fps, ok := asFloat(patch["fps"]); ok {
		out.FPS = int(fps)
	}
	if d, ok := asFloat(patch["duration"]); ok {
		out.Duration = &d
	}
	switch fit := patch["fitDurationTo"].(type) {
	case string:
		out.FitDurationTo = tree.FitRef{fit}
	case []any:
		var ids tree.FitRef
		for _, v := range fit {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
		if len(ids) > 0 {
			out.FitDurationTo = ids
		}
	}

	return out
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
