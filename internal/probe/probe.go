// Package probe asks an external tool for the natural duration of a media
// asset. The rest of the engine treats it as a black box behind Prober.
package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Prober returns the natural duration of the media at url, in seconds.
// Implementations own their timeouts; cancellation arrives via ctx.
type Prober interface {
	Probe(ctx context.Context, url string) (float64, error)
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context, url string) (float64, error)

func (f Func) Probe(ctx context.Context, url string) (float64, error) {
	return f(ctx, url)
}

// FFprober probes media through the ffprobe binary. Works for local paths
// and for any URL scheme ffprobe was built with.
type FFprober struct {
	// Binary overrides the ffprobe executable name (for tests and
	// non-standard installs).
	Binary string
}

func (p *FFprober) Probe(ctx context.Context, url string) (float64, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		url)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("ffprobe %s: %w (%s)", url, err, strings.TrimSpace(string(out)))
	}

	return ParseDuration(string(out))
}

// ParseDuration parses ffprobe's single-value duration output.
func ParseDuration(out string) (float64, error) {
	var duration float64
	_, err := fmt.Sscanf(strings.TrimSpace(out), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("не удалось разобрать длительность %q: %w", strings.TrimSpace(out), err)
	}

	return duration, nil
}
