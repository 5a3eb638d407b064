// Package bridge turns delivered synthesis messages into downloaded items:
// it decodes the audio, writes it next to the other downloads, probes its
// duration and registers it with the store. Messages arrive in-process from
// the interception queue or as JSON over the websocket Hub.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/dgnsrekt/audiofetch/internal/audio"
	"github.com/dgnsrekt/audiofetch/internal/intercept"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

// FileExt is the extension of every downloaded file.
const FileExt = ".m4a"

var (
	// ErrMalformedMessage is returned for messages with missing or invalid
	// fields. Such messages are dropped.
	ErrMalformedMessage = errors.New("malformed bridge message")
	// ErrProbeFailed is returned when the written file has no readable
	// duration. The file is removed and nothing is added.
	ErrProbeFailed = errors.New("audio probe failed")
)

// requiredFields must be present in every JSON bridge message.
var requiredFields = []string{"conversationId", "messageId", "audioData", "name"}

// TitleSource supplies conversation titles seen by the proxy.
type TitleSource interface {
	Title(conversationID string) (string, bool)
}

// Options configures a Handler.
type Options struct {
	Store  *store.Store
	Prober audio.Prober
	// Titles, when set, names conversations that have no label yet.
	Titles TitleSource
	// NewID generates file names. Defaults to random UUIDs.
	NewID func() string
	// ProbeTimeout bounds a single probe. Defaults to 15s.
	ProbeTimeout time.Duration
}

// Handler receives bridge messages.
type Handler struct {
	store        *store.Store
	prober       audio.Prober
	titles       TitleSource
	newID        func() string
	probeTimeout time.Duration
}

// NewHandler creates a handler.
func NewHandler(opts Options) *Handler {
	if opts.Prober == nil {
		opts.Prober = audio.FFProbe{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 15 * time.Second
	}
	return &Handler{
		store:        opts.Store,
		prober:       opts.Prober,
		titles:       opts.Titles,
		newID:        opts.NewID,
		probeTimeout: opts.ProbeTimeout,
	}
}

// Deliver implements intercept.Deliverer.
func (h *Handler) Deliver(ctx context.Context, m intercept.Message) error {
	data, err := DecodeAudioData(m.AudioData)
	if err != nil {
		log.Warn("Dropping bridge message", "conversation", m.ConversationID, "message", m.MessageID, "error", err)
		return err
	}

	name := m.Name
	if strings.TrimSpace(name) == "" {
		name = intercept.UnknownName
	}

	fs := h.store.Fs()
	if err := fs.MkdirAll(h.store.Dir(), 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}
	path := filepath.Join(h.store.Dir(), h.newID()+FileExt)
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()
	duration, err := h.prober.Probe(probeCtx, path)
	if err != nil {
		if rmErr := fs.Remove(path); rmErr != nil {
			log.Warn("Could not remove unreadable audio", "path", path, "error", rmErr)
		}
		log.Error("Audio probe failed", "message", m.MessageID, "path", path, "error", err)
		return fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	h.store.Add(path, name, &duration, m.ConversationID, m.MessageID)
	h.nameConversation(m.ConversationID)

	if m.QueueLength > 0 {
		log.Debug("More downloads pending", "remaining", m.QueueLength)
	}
	return nil
}

// nameConversation applies a known title to a conversation without a label.
func (h *Handler) nameConversation(conversationID string) {
	if h.titles == nil || conversationID == "" {
		return
	}
	if h.store.ConversationName(conversationID) != conversationID {
		return
	}
	if title, ok := h.titles.Title(conversationID); ok && title != "" {
		if err := h.store.RenameConversation(conversationID, title); err != nil {
			log.Debug("Could not name conversation", "conversation", conversationID, "error", err)
		}
	}
}

// HandleJSON decodes an untyped bridge payload and delivers it. Payloads
// missing any required field are logged and dropped.
func (h *Handler) HandleJSON(ctx context.Context, raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		log.Warn("Dropping undecodable bridge message", "error", err)
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	for _, key := range requiredFields {
		if _, ok := fields[key]; !ok {
			log.Warn("Dropping bridge message with missing field", "field", key)
			return fmt.Errorf("%w: missing %s", ErrMalformedMessage, key)
		}
	}

	var m intercept.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Warn("Dropping bridge message with invalid field", "error", err)
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return h.Deliver(ctx, m)
}

// DecodeAudioData decodes a base64 data URL, or bare base64.
func DecodeAudioData(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: data URL without payload", ErrMalformedMessage)
		}
		if meta := payload[len("data:"):comma]; !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: data URL is not base64", ErrMalformedMessage)
		}
		payload = payload[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrMalformedMessage)
	}
	return data, nil
}
