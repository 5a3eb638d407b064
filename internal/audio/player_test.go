package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    OtoConfig
		expectErr bool
	}{
		{"default", DefaultOtoConfig(), false},
		{"48000Hz mono", OtoConfig{SampleRate: 48000, Channels: 1}, false},
		{"invalid sample rate", OtoConfig{SampleRate: 22050, Channels: 1}, true},
		{"invalid channels", OtoConfig{SampleRate: 44100, Channels: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if (err != nil) != tt.expectErr {
				t.Errorf("validateConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestDecodeArgs(t *testing.T) {
	got := decodeArgs("/a.m4a", 44100, 2, 1.0)
	want := []string{"-nostdin", "-v", "error", "-i", "/a.m4a", "-f", "s16le", "-ar", "44100", "-ac", "2", "-"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decodeArgs(1.0) = %v", got)
	}

	got = decodeArgs("/a.m4a", 48000, 1, 3.0)
	if n := len(got); got[n-3] != "-filter:a" || got[n-2] != "atempo=2.00" {
		t.Errorf("decodeArgs(3.0) = %v, want clamped atempo filter", got)
	}
}

func TestDecodePCM_MissingFile(t *testing.T) {
	_, err := decodePCM(context.Background(), "ffmpeg", filepath.Join(t.TempDir(), "missing.m4a"), 44100, 2, 1)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"12.345000\n", 12.345, false},
		{"0", 0, false},
		{"N/A\n", 0, true},
		{"", 0, true},
		{"garbage", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) error = %v", tt.in, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrNoDuration) {
			t.Errorf("parseDuration(%q) error = %v, want ErrNoDuration", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFFProbe_CorruptFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("Skipping probe test: ffprobe not available")
	}

	path := filepath.Join(t.TempDir(), "corrupt.m4a")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (FFProbe{}).Probe(context.Background(), path); err == nil {
		t.Error("expected probe error for corrupt file")
	}
}

func TestClampRate(t *testing.T) {
	for in, want := range map[float64]float64{0.1: 0.5, 0.75: 0.75, 2.5: 2.0} {
		if got := ClampRate(in); got != want {
			t.Errorf("ClampRate(%v) = %v, want %v", in, got, want)
		}
	}
}
