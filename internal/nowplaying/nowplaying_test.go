package nowplaying

import (
	"errors"
	"testing"
)

type failingSurface struct{ cleared int }

func (f *failingSurface) Publish(Info) error { return errors.New("boom") }
func (f *failingSurface) Clear() { f.cleared++ }

func TestChanSurface_DropsOldest(t *testing.T) {
	s := NewChanSurface(2)
	for i := 1; i <= 3; i++ {
		if err := s.Publish(Info{ItemID: "x", QueueIndex: i}); err != nil {
			t.Fatal(err)
		}
	}

	first := <-s.Updates()
	second := <-s.Updates()
	if first.QueueIndex != 2 || second.QueueIndex != 3 {
		t.Errorf("got %d, %d; want 2, 3", first.QueueIndex, second.QueueIndex)
	}

	s.Clear()
	if got := <-s.Updates(); !got.Empty() {
		t.Errorf("Clear published %+v", got)
	}
}

func TestMulti(t *testing.T) {
	failing := &failingSurface{}
	ch := NewChanSurface(1)
	m := Multi{Nop{}, failing, ch}

	if err := m.Publish(Info{ItemID: "a"}); err == nil {
		t.Error("expected joined error")
	}
	if got := <-ch.Updates(); got.ItemID != "a" {
		t.Errorf("later surface skipped after failure: %+v", got)
	}

	m.Clear()
	if failing.cleared != 1 {
		t.Errorf("cleared %d times", failing.cleared)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    Command
		wantErr bool
	}{
		{"play", "", Command{Kind: CommandPlay}, false},
		{"Toggle", "", Command{Kind: CommandToggle}, false},
		{"seek", "42.5", Command{Kind: CommandSeekTo, Value: 42.5}, false},
		{"seek", "", Command{}, true},
		{"forward", "", Command{Kind: CommandSkipForward}, false},
		{"backward", "10", Command{Kind: CommandSkipBackward, Value: 10}, false},
		{"next", "x", Command{}, true},
		{"rewind", "", Command{}, true},
	}

	for _, tt := range tests {
		got, err := ParseCommand(tt.name, tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCommand(%q, %q) error = %v", tt.name, tt.arg, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q, %q) = %+v, want %+v", tt.name, tt.arg, got, tt.want)
		}
	}

	if _, err := ParseCommand("rewind", ""); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v", err)
	}
	for _, arg := range []string{"", "soon"} {
		if _, err := ParseCommand("seek", arg); !errors.Is(err, ErrBadArgument) {
			t.Errorf("seek %q error = %v", arg, err)
		}
	}
}

func TestSkipSeconds(t *testing.T) {
	if got := (Command{Kind: CommandSkipBackward}).SkipSeconds(); got != -DefaultSkipInterval {
		t.Errorf("default backward skip = %v", got)
	}
	if got := (Command{Kind: CommandSkipForward, Value: 15}).SkipSeconds(); got != 15 {
		t.Errorf("forward skip = %v", got)
	}
	if got := (Command{Kind: CommandNext}).SkipSeconds(); got != 0 {
		t.Errorf("non-skip command = %v", got)
	}
}
