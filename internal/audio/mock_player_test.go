package audio

import (
	"errors"
	"testing"
)

// Compile-time interface checks.
var (
	_ Player = (*MockPlayer)(nil)
	_ Player = (*OtoPlayer)(nil)
)

func TestMockPlayer_ControlsBeforeLoad(t *testing.T) {
	mp := NewMockPlayer()
	if err := mp.Play(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Play before Load = %v, want ErrNotLoaded", err)
	}
	if err := mp.Seek(3); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Seek before Load = %v, want ErrNotLoaded", err)
	}
}

func TestMockPlayer_LoadResetsPosition(t *testing.T) {
	mp := NewMockPlayer()
	mp.Durations["/a.m4a"] = 12

	if err := mp.Load("/a.m4a"); err != nil {
		t.Fatal(err)
	}
	_ = mp.Play()
	mp.Advance(5)
	if got := mp.CurrentTime(); got != 5 {
		t.Errorf("CurrentTime = %v, want 5", got)
	}

	if err := mp.Load("/b.m4a"); err != nil {
		t.Fatal(err)
	}
	if mp.IsPlaying() || mp.CurrentTime() != 0 || mp.Duration() != 60 {
		t.Errorf("after reload playing=%v time=%v duration=%v", mp.IsPlaying(), mp.CurrentTime(), mp.Duration())
	}
	if got := mp.Loads(); len(got) != 2 || got[0] != "/a.m4a" {
		t.Errorf("Loads = %v", got)
	}
}

func TestMockPlayer_SeekClamps(t *testing.T) {
	mp := NewMockPlayer()
	mp.DefaultDuration = 10
	_ = mp.Load("/a.m4a")

	tests := []struct {
		seek float64
		want float64
	}{
		{4, 4},
		{-2, 0},
		{25, 10},
	}
	for _, tt := range tests {
		_ = mp.Seek(tt.seek)
		if got := mp.CurrentTime(); got != tt.want {
			t.Errorf("Seek(%v) -> %v, want %v", tt.seek, got, tt.want)
		}
	}
}

func TestMockPlayer_Finish(t *testing.T) {
	mp := NewMockPlayer()
	_ = mp.Load("/a.m4a")
	_ = mp.Play()

	calls := 0
	mp.OnFinished(func() { calls++ })
	mp.Finish()

	if calls != 1 {
		t.Errorf("finish hook called %d times", calls)
	}
	if mp.IsPlaying() || mp.CurrentTime() != mp.Duration() {
		t.Error("Finish should stop at the end of the track")
	}
}

func TestMockPlayer_RateClamped(t *testing.T) {
	mp := NewMockPlayer()
	_ = mp.SetRate(3)
	if mp.Rate() != MaxRate {
		t.Errorf("Rate = %v, want %v", mp.Rate(), MaxRate)
	}
	_ = mp.SetRate(0.1)
	if mp.Rate() != MinRate {
		t.Errorf("Rate = %v, want %v", mp.Rate(), MinRate)
	}
}

func TestMockPlayer_Closed(t *testing.T) {
	mp := NewMockPlayer()
	_ = mp.Close()
	if err := mp.Load("/a.m4a"); !errors.Is(err, ErrClosed) {
		t.Errorf("Load after Close = %v, want ErrClosed", err)
	}
}
