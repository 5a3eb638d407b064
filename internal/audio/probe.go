package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoDuration is returned when a file carries no readable duration.
var ErrNoDuration = errors.New("no duration in media file")

// Prober reports the duration of an audio file in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context, path string) (float64, error)

// Probe calls f(ctx, path).
func (f ProbeFunc) Probe(ctx context.Context, path string) (float64, error) {
	return f(ctx, path)
}

// FFProbe probes files with the ffprobe binary.
type FFProbe struct {
	// Path to the ffprobe binary. Defaults to "ffprobe" on $PATH.
	Path string
}

// Probe runs ffprobe and parses the container duration.
func (p FFProbe) Probe(ctx context.Context, path string) (float64, error) {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w, stderr: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseDuration(stdout.String())
}

// parseDuration reads ffprobe's bare duration output.
func parseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, ErrNoDuration
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: negative duration %v", ErrNoDuration, d)
	}
	return d, nil
}
