package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/library"
	"github.com/dgnsrekt/audiofetch/internal/playback"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults()
	t.Cleanup(func() {
		viper.Reset()
		setDefaults()
	})
}

func TestLoadAppConfigDefaults(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	viper.Set("storage.dir", dir)

	cfg, err := loadAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8765", cfg.Listen)
	assert.Equal(t, "file", cfg.StorageBackend)
	assert.Equal(t, dir, cfg.StorageDir)
	assert.Equal(t, filepath.Join(dir, "audio"), cfg.AudioDir)
	assert.Equal(t, playback.NavigateList, cfg.Navigation)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.PromptTimeout)
	assert.InDelta(t, 5.0, cfg.SkipInterval, 0.0001)
}

func TestLoadAppConfigRejectsBadValues(t *testing.T) {
	tests := map[string]struct {
		key   string
		value any
	}{
		"on_error":    {"intercept.on_error", "ignore"},
		"max_retries": {"intercept.max_retries", -1},
		"navigation":  {"playback.navigation", "shuffle"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			resetViper(t)
			viper.Set("storage.dir", t.TempDir())
			viper.Set(tc.key, tc.value)

			_, err := loadAppConfig()
			require.Error(t, err)
		})
	}
}

func TestExpandDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandDir("~/audio", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "audio"), got)

	got, err = expandDir("", func() (string, error) { return "/fallback", nil })
	require.NoError(t, err)
	assert.Equal(t, "/fallback", got)

	got, err = expandDir("relative", nil)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestPageURL(t *testing.T) {
	cfg := appConfig{Upstream: "https://chatgpt.com"}
	assert.Equal(t, "https://chatgpt.com", cfg.pageURL())

	cfg.PageHost = "chat.openai.com"
	assert.Equal(t, "https://chat.openai.com", cfg.pageURL())
}

func TestDecider(t *testing.T) {
	a := &app{cfg: appConfig{OnError: "skip"}}
	assert.Equal(t, intercept.PolicyDecider{SkipAlways: true}, a.decider(true))

	a = &app{cfg: appConfig{OnError: "retry", MaxRetries: 2}}
	assert.Equal(t, intercept.PolicyDecider{MaxRetries: 2}, a.decider(true))

	a = &app{cfg: appConfig{OnError: "prompt", MaxRetries: 4, PromptTimeout: time.Second}}
	assert.Equal(t, intercept.PolicyDecider{MaxRetries: 4}, a.decider(false))
	assert.Nil(t, a.prompts)

	d := a.decider(true)
	require.NotNil(t, a.prompts)
	assert.Same(t, a.prompts, d)
}

func openTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	a, err := openApp(appConfig{
		Upstream:       "https://chatgpt.com",
		StorageBackend: "file",
		StorageDir:     dir,
		AudioDir:       filepath.Join(dir, "audio"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func addTestItem(t *testing.T, a *app, name, conv, msg string) {
	t.Helper()
	path := filepath.Join(a.cfg.AudioDir, msg+".m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))
	d := 65.0
	a.store.Add(path, name, &d, conv, msg)
}

func TestResolveItem(t *testing.T) {
	a := openTestApp(t)
	addTestItem(t, a, "First answer", "c1", "m1")
	addTestItem(t, a, "Second answer", "c1", "m2")

	items := a.store.Items()

	got, err := resolveItem(a.store, "2")
	require.NoError(t, err)
	assert.Equal(t, items[1].ID, got.ID)

	got, err = resolveItem(a.store, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "First answer", got.DisplayName)

	_, err = resolveItem(a.store, "3")
	require.Error(t, err)
	_, err = resolveItem(a.store, "nope")
	require.Error(t, err)
}

func TestPrintList(t *testing.T) {
	a := openTestApp(t)

	var buf bytes.Buffer
	require.NoError(t, printList(&buf, a, "", 80))
	assert.Contains(t, buf.String(), "No downloads yet.")

	addTestItem(t, a, "Weather in Lisbon", "c1", "m1")
	addTestItem(t, a, "Pasta recipe", "c2", "m2")
	require.NoError(t, a.store.RenameConversation("c2", "Cooking"))

	buf.Reset()
	require.NoError(t, printList(&buf, a, "", 80))
	out := buf.String()
	assert.Contains(t, out, "Cooking")
	assert.Contains(t, out, "1. Weather in Lisbon")
	assert.Contains(t, out, "2. Pasta recipe")
	assert.Contains(t, out, "01:05")
	assert.Less(t, strings.Index(out, "Weather"), strings.Index(out, "Pasta"))

	buf.Reset()
	require.NoError(t, printList(&buf, a, "pasta", 80))
	assert.Contains(t, buf.String(), "2. Pasta recipe")
	assert.NotContains(t, buf.String(), "Weather")
}

func TestNotesMarkdown(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	notes := []library.Note{
		{ID: "n1", Text: "first", MessageID: "m1", ConversationID: "c1", Timestamp: ts},
		{ID: "n2", Text: "second", MessageID: "m2", ConversationID: "c2", Timestamp: ts},
		{ID: "n3", Text: "third", MessageID: "m3", ConversationID: "c1", Timestamp: ts},
	}
	name := func(id string) string { return "Conversation " + id }
	link := func(conv, msg string) string { return "https://chatgpt.com/c/" + conv + "#" + msg }

	md := notesMarkdown(name, notes, link)
	assert.Less(t, strings.Index(md, "# Conversation c1"), strings.Index(md, "# Conversation c2"))
	assert.Less(t, strings.Index(md, "third"), strings.Index(md, "# Conversation c2"))
	assert.Contains(t, md, "(https://chatgpt.com/c/c1#m1)")

	assert.Len(t, filterNotes(notes, "c1"), 2)
	assert.Empty(t, filterNotes(notes, "c9"))
}

func TestTextFromArgs(t *testing.T) {
	text, err := textFromArgs([]string{"be", "brief"}, "")
	require.NoError(t, err)
	assert.Equal(t, "be brief", text)
}

func TestPostSay(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_audiofetch/api/say", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["text"] == "" {
			http.Error(w, "text is empty", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"clients":2}`))
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	n, err := postSay(addr, "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string]string{"promptId": "p1", "text": "hello"}, got)

	_, err = postSay(addr, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text is empty")
}
