package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// decodeTimeout bounds a single ffmpeg run.
	decodeTimeout = 60 * time.Second
	// maxPCMSize caps decoded output, roughly 40 minutes of 44.1kHz mono.
	maxPCMSize = 256 * 1024 * 1024
)

// decodeArgs builds the ffmpeg arguments converting path to raw s16le PCM at
// the requested rate.
func decodeArgs(path string, sampleRate, channels int, rate float64) []string {
	args := []string{
		"-nostdin",
		"-v", "error",
		"-i", path,
		"-f", "s16le",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
	}
	if rate != 1.0 {
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.2f", ClampRate(rate)))
	}
	return append(args, "-")
}

// decodePCM runs ffmpeg and returns the decoded samples.
func decodePCM(ctx context.Context, ffmpeg, path string, sampleRate, channels int, rate float64) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, decodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpeg, decodeArgs(path, sampleRate, channels, rate)...)
	cmd.Stdin = strings.NewReader("")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg decode timeout: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no PCM output, stderr: %s", strings.TrimSpace(stderr.String()))
	}
	if len(pcm) > maxPCMSize {
		return nil, fmt.Errorf("ffmpeg PCM output too large: %d bytes (max %d)", len(pcm), maxPCMSize)
	}
	return pcm, nil
}
