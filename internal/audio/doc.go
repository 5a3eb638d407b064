// Package audio plays downloaded audio files. Files are decoded to PCM with
// ffmpeg and streamed through oto/v3; a deterministic MockPlayer stands in for
// the device in tests. The package also probes file durations with ffprobe.
package audio
