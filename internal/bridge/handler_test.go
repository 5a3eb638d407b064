package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/audiofetch/internal/audio"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

const audioDir = "/data/audio"

type titles map[string]string

func (t titles) Title(id string) (string, bool) {
	s, ok := t[id]
	return s, ok
}

func newTestHandler(t *testing.T, prober audio.Prober) (*Handler, *store.Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := store.New(store.Options{Backend: prefs.NewMemory(), Fs: fs, Dir: audioDir})
	h := NewHandler(Options{
		Store:  s,
		Prober: prober,
		Titles: titles{"c1": "Trip planning"},
		NewID:  func() string { return "file-1" },
	})
	return h, s, fs
}

func fixedProbe(d float64) audio.Prober {
	return audio.ProbeFunc(func(context.Context, string) (float64, error) { return d, nil })
}

func dataURL(b []byte) string {
	return "data:audio/aac;base64," + base64.StdEncoding.EncodeToString(b)
}

func TestDeliver_WritesProbesAndAdds(t *testing.T) {
	h, s, fs := newTestHandler(t, fixedProbe(7.25))

	err := h.Deliver(context.Background(), intercept.Message{
		ConversationID: "c1",
		MessageID:      "m1",
		AudioData:      dataURL([]byte("AUDIO")),
		Name:           "Hello",
	})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, filepath.Join(audioDir, "file-1.m4a"))
	require.NoError(t, err)
	assert.Equal(t, "AUDIO", string(data))

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "file-1.m4a", items[0].RelativePath)
	assert.Equal(t, "Hello", items[0].DisplayName)
	assert.Equal(t, 7.25, items[0].DurationSeconds())
	assert.Equal(t, "m1", items[0].MessageID)
	assert.Equal(t, "Trip planning", s.ConversationName("c1"))
}

func TestDeliver_ProbeFailureAddsNothing(t *testing.T) {
	probe := audio.ProbeFunc(func(context.Context, string) (float64, error) {
		return 0, audio.ErrNoDuration
	})
	h, s, fs := newTestHandler(t, probe)

	err := h.Deliver(context.Background(), intercept.Message{
		ConversationID: "c1",
		MessageID:      "m1",
		AudioData:      dataURL([]byte("corrupt")),
		Name:           "Broken",
	})
	require.ErrorIs(t, err, ErrProbeFailed)
	assert.Equal(t, 0, s.Len())

	exists, _ := afero.Exists(fs, filepath.Join(audioDir, "file-1.m4a"))
	assert.False(t, exists, "unreadable file should be removed")
}

func TestDeliver_DefaultsName(t *testing.T) {
	h, s, _ := newTestHandler(t, fixedProbe(1))
	require.NoError(t, h.Deliver(context.Background(), intercept.Message{
		ConversationID: "c2",
		MessageID:      "m1",
		AudioData:      base64.StdEncoding.EncodeToString([]byte("x")),
	}))
	assert.Equal(t, intercept.UnknownName, s.Items()[0].DisplayName)
	assert.Equal(t, "c2", s.ConversationName("c2"), "no title known for c2")
}

func TestHandleJSON_MissingFieldsDropped(t *testing.T) {
	var probed bool
	probe := audio.ProbeFunc(func(context.Context, string) (float64, error) {
		probed = true
		return 1, nil
	})
	h, s, _ := newTestHandler(t, probe)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `nope`},
		{"missing audio", `{"conversationId":"c","messageId":"m","name":"n"}`},
		{"missing name", `{"conversationId":"c","messageId":"m","audioData":"eA=="}`},
		{"wrong type", `{"conversationId":1,"messageId":"m","audioData":"eA==","name":"n"}`},
		{"bad base64", `{"conversationId":"c","messageId":"m","audioData":"data:audio/aac;base64,%%%","name":"n"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.HandleJSON(context.Background(), []byte(tt.raw))
			assert.True(t, errors.Is(err, ErrMalformedMessage), "err = %v", err)
		})
	}
	assert.False(t, probed)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, h.HandleJSON(context.Background(),
		[]byte(`{"conversationId":"c","messageId":"m","audioData":"eA==","name":"n","queueLength":2}`)))
	assert.Equal(t, 1, s.Len())
}

func TestDecodeAudioData(t *testing.T) {
	got, err := DecodeAudioData("data:audio/mpeg;base64,AQID")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	_, err = DecodeAudioData("data:text/plain,hello")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = DecodeAudioData("")
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = DecodeAudioData("data:audio/aac;base64")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
