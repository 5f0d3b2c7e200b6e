// Package resolve computes the effective play duration of every node in a
// composition tree. Resolution is two explicit passes: first the non-scene
// nodes (media probing, fitDurationTo references), then the scene/layout
// aggregation over the settled leaves.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/compositor/internal/match"
	"github.com/ivlev/compositor/internal/probe"
	"github.com/ivlev/compositor/internal/tree"
)

// Resolver resolves durations against a media prober. The zero value is not
// usable; construct with New.
type Resolver struct {
	Prober probe.Prober
	Logger *log.Logger

	// Parallel resolves independent sibling subtrees concurrently during
	// the first pass. Off by default: the sequential order is the
	// reference behavior and probe latency rarely matters for local media.
	Parallel    bool
	MaxInFlight int
}

// Result is a resolved composition: a new tree plus the duration derived
// from the root config's own fitDurationTo reference, when one resolved.
type Result struct {
	Root    *tree.Root
	RootFit *float64
}

// New creates a Resolver with the default logger.
func New(p probe.Prober) *Resolver {
	return &Resolver{Prober: p, Logger: log.Default()}
}

// Resolve returns a resolved copy of root. The input is never mutated.
// Probe failures degrade the affected node to "unresolved" and resolution
// continues; a canceled context aborts the whole call — no partial tree.
func (r *Resolver) Resolve(ctx context.Context, root *tree.Root) (*Result, error) {
	if root == nil {
		return nil, fmt.Errorf("resolve: нет композиции")
	}

	out := root.Clone()

	if err := r.passLeaves(ctx, out.Children); err != nil {
		return nil, err
	}
	if err := r.passScenes(ctx, out.Children); err != nil {
		return nil, err
	}

	res := &Result{Root: out}
	if targets := out.Config.FitDurationTo.Targets(""); len(targets) > 0 {
		d, err := r.calculateDuration(ctx, out.Children, targets)
		if err != nil {
			return nil, err
		}
		res.RootFit = d
	}

	return res, nil
}

// passLeaves is Pass 1: post-order, left to right, non-scene nodes only.
// Scenes are traversed (their descendants settle here) but their own
// duration waits for Pass 2.
func (r *Resolver) passLeaves(ctx context.Context, nodes []*tree.Node) error {
	return r.eachSubtree(ctx, nodes, func(ctx context.Context, n *tree.Node) error {
		if err := r.passLeaves(ctx, n.Children); err != nil {
			return err
		}
		if n.Type == tree.Scene {
			return nil
		}
		return r.resolveLeaf(ctx, n)
	})
}

func (r *Resolver) resolveLeaf(ctx context.Context, n *tree.Node) error {
	targets := n.Context.Timing.FitDurationTo.Targets(n.ID)

	if len(targets) == 0 {
		// Leaf media atoms without an explicit duration carry their
		// intrinsic length.
		if isMediaAtom(n) && len(n.Children) == 0 && n.Duration() == nil {
			natural, err := r.probeNode(ctx, n)
			if err != nil {
				return err
			}
			if natural != nil {
				n.SetDuration(*natural)
			}
		}
		return nil
	}

	// A referenced media atom exposes its natural length to the consumer
	// through data.srcDuration instead of its own timing.
	if isMediaAtom(n) && len(n.Children) == 0 {
		natural, err := r.probeNode(ctx, n)
		if err != nil {
			return err
		}
		if natural != nil {
			if n.Data == nil {
				n.Data = map[string]any{}
			}
			n.Data["srcDuration"] = *natural
		}
		return nil
	}

	d, err := r.calculateDuration(ctx, n.Children, targets)
	if err != nil {
		return err
	}
	if d != nil {
		n.Context.Timing.Duration = d
	}
	return nil
}

// passScenes is Pass 2: scene/layout nodes over the Pass-1 output,
// post-order so nested scenes settle before their parents aggregate.
func (r *Resolver) passScenes(ctx context.Context, nodes []*tree.Node) error {
	for _, n := range nodes {
		if err := r.passScenes(ctx, n.Children); err != nil {
			return err
		}
		if n.Type != tree.Scene && n.Type != tree.Layout {
			continue
		}

		if targets := n.Context.Timing.FitDurationTo.Targets(n.ID); len(targets) > 0 {
			d, err := r.calculateDuration(ctx, n.Children, targets)
			if err != nil {
				return err
			}
			if d != nil {
				n.Context.Timing.Duration = d
			}
			continue
		}

		// Explicitly declared durations win over aggregation.
		if n.Duration() != nil {
			continue
		}

		sum := 0.0
		for _, c := range n.Children {
			if d := c.Duration(); d != nil {
				sum += *d
			}
		}
		n.SetDuration(sum)
	}
	return nil
}

// calculateDuration resolves a fitDurationTo reference against the node's
// own children. Only the exactly-one-match case has defined semantics; 0 or
// 2+ matches leave the duration unresolved.
func (r *Resolver) calculateDuration(ctx context.Context, children []*tree.Node, targets []string) (*float64, error) {
	matches := match.ByID(children, targets)
	if len(matches) != 1 {
		r.logf("[!] fitDurationTo %v: найдено %d узлов, длительность не определена", targets, len(matches))
		return nil, nil
	}

	m := matches[0]
	switch {
	case isMediaAtom(m):
		md, err := decodeMedia(m)
		if err != nil {
			r.logf("[!] Узел %s: некорректный data: %v", m.ID, err)
			return nil, nil
		}

		natural := md.SrcDuration
		if natural == nil {
			natural, err = r.probeNode(ctx, m)
			if err != nil {
				return nil, err
			}
		}
		if natural == nil {
			return nil, nil
		}

		d := effectiveDuration(*natural, md)
		return &d, nil

	case (m.Type == tree.Scene || m.Type == tree.Layout) && m.Duration() != nil:
		d := *m.Duration()
		return &d, nil
	}

	r.logf("[!] fitDurationTo %s: компонент %s не поддерживается", m.ID, m.ComponentID)
	return nil, nil
}

// probeNode asks the prober for the node's natural media length. A probe
// failure is degraded to nil and logged; cancellation is returned as an
// error and aborts the resolve.
func (r *Resolver) probeNode(ctx context.Context, n *tree.Node) (*float64, error) {
	md, err := decodeMedia(n)
	if err != nil {
		r.logf("[!] Узел %s: некорректный data: %v", n.ID, err)
		return nil, nil
	}
	if md.Src == "" {
		return nil, nil
	}
	if r.Prober == nil {
		r.logf("[!] Узел %s: пробер не задан, src пропущен", n.ID)
		return nil, nil
	}

	natural, err := r.Prober.Probe(ctx, md.Src)
	if err != nil {
		if isCanceled(ctx, err) {
			return nil, err
		}
		r.logf("[!] Узел %s: не удалось получить длительность %s: %v", n.ID, md.Src, err)
		return nil, nil
	}

	return &natural, nil
}

// eachSubtree runs fn over sibling nodes, fanning out when Parallel is set.
// Siblings own disjoint subtrees, so concurrent resolution never races.
func (r *Resolver) eachSubtree(ctx context.Context, nodes []*tree.Node, fn func(context.Context, *tree.Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !r.Parallel || len(nodes) < 2 {
		for _, n := range nodes {
			if err := fn(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	limit := r.MaxInFlight
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			return fn(ctx, n)
		})
	}
	return g.Wait()
}

func (r *Resolver) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
