// Package assemble is the single entry point the rendering and preview
// layers call: it resolves durations and derives the final frame metadata.
package assemble

import (
	"context"
	"fmt"
	"math"

	"github.com/ivlev/compositor/internal/probe"
	"github.com/ivlev/compositor/internal/registry"
	"github.com/ivlev/compositor/internal/resolve"
	"github.com/ivlev/compositor/internal/tree"
)

// Defaults used when neither a reference nor the config supplies a value.
const (
	DefaultWidth    = 1280
	DefaultHeight   = 720
	DefaultFPS      = 30
	DefaultDuration = 10.0
)

// Output is everything the renderer needs: the resolved tree plus the
// finalized frame metadata.
type Output struct {
	Props            *tree.Root `json:"props"`
	Width            int        `json:"width"`
	Height           int        `json:"height"`
	FPS              int        `json:"fps"`
	Duration         float64    `json:"duration"`
	DurationInFrames int        `json:"durationInFrames"`
}

// Assembler wires the resolver and the component registry together.
type Assembler struct {
	Resolver *resolve.Resolver
	Registry *registry.Registry
}

// New builds an assembler over the given prober with the stock components.
func New(p probe.Prober) *Assembler {
	return &Assembler{
		Resolver: resolve.New(p),
		Registry: registry.Builtin(),
	}
}

// Assemble resolves the composition and computes its metadata. Precedence
// for the total duration: resolved by reference, then the explicit config
// value, then the default. Idempotent for a fixed input as long as the
// probed media does not change.
func (a *Assembler) Assemble(ctx context.Context, root *tree.Root) (*Output, error) {
	if root == nil {
		return nil, fmt.Errorf("assemble: нет композиции")
	}
	if a.Resolver == nil {
		return nil, fmt.Errorf("assemble: резолвер не задан")
	}

	work := root
	if a.Registry != nil {
		work = root.Clone()
		a.applyDefaults(work.Children)
	}

	res, err := a.Resolver.Resolve(ctx, work)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Props:  res.Root,
		Width:  res.Root.Config.Width,
		Height: res.Root.Config.Height,
		FPS:    res.Root.Config.FPS,
	}
	if out.Width <= 0 {
		out.Width = DefaultWidth
	}
	if out.Height <= 0 {
		out.Height = DefaultHeight
	}
	if out.FPS <= 0 {
		out.FPS = DefaultFPS
	}

	switch {
	case res.RootFit != nil:
		out.Duration = *res.RootFit
	case res.Root.Config.Duration != nil:
		out.Duration = *res.Root.Config.Duration
	default:
		out.Duration = DefaultDuration
	}
	out.DurationInFrames = int(math.Round(out.Duration * float64(out.FPS)))

	return out, nil
}

// applyDefaults fills missing data keys from the component registry. Only
// absent keys are touched; authored values always win.
func (a *Assembler) applyDefaults(nodes []*tree.Node) {
	tree.Walk(nodes, func(n *tree.Node) {
		comp, ok := a.Registry.Resolve(n.ComponentID)
		if !ok || len(comp.DefaultData) == 0 {
			return
		}
		if n.Data == nil {
			n.Data = make(map[string]any, len(comp.DefaultData))
		}
		for k, v := range comp.DefaultData {
			if _, exists := n.Data[k]; !exists {
				n.Data[k] = v
			}
		}
	})
}
